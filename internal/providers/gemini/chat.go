package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"nora/internal/domain"
	"nora/internal/ports"
)

// ChatConfig controls the turn-based text channel.
type ChatConfig struct {
	APIKey          string
	Model           string
	PhotoCategories []string

	// BaseURL and HTTPClient override the REST endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

// ChatProvider implements ports.ChatProvider with the genai Chats API.
type ChatProvider struct {
	cfg    ChatConfig
	logger *slog.Logger

	mu     sync.Mutex
	client *genai.Client
}

func NewChatProvider(cfg ChatConfig, logger *slog.Logger) *ChatProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatProvider{cfg: cfg, logger: logger}
}

func (p *ChatProvider) StartChat(ctx context.Context, systemInstruction string) (ports.ChatSession, error) {
	client, err := p.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		Tools: Tools(p.cfg.PhotoCategories),
	}
	if strings.TrimSpace(systemInstruction) != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}}
	}

	chat, err := client.Chats.Create(ctx, p.cfg.Model, config, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return &chatSession{chat: chat, logger: p.logger}, nil
}

func (p *ChatProvider) ensureClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is not configured")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     p.cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.cfg.HTTPClient,
	}
	if p.cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: p.cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	p.client = client
	return client, nil
}

type chatSession struct {
	chat   *genai.Chat
	logger *slog.Logger
}

func (s *chatSession) Send(ctx context.Context, turn ports.ChatTurn) (ports.ChatReply, error) {
	parts := []genai.Part{{Text: turn.Text}}
	if strings.TrimSpace(turn.Context) != "" {
		parts = append(parts, genai.Part{Text: turn.Context})
	}

	resp, err := s.chat.SendMessage(ctx, parts...)
	if err != nil {
		return ports.ChatReply{}, fmt.Errorf("chat turn failed: %w", err)
	}
	return convertReply(resp), nil
}

func (s *chatSession) Acknowledge(ctx context.Context, results []domain.ToolResult) (ports.ChatReply, error) {
	if len(results) == 0 {
		return ports.ChatReply{}, nil
	}

	parts := make([]genai.Part, 0, len(results))
	for _, result := range results {
		parts = append(parts, genai.Part{FunctionResponse: &genai.FunctionResponse{
			ID:       result.ID,
			Name:     string(result.Name),
			Response: result.Response,
		}})
	}

	resp, err := s.chat.SendMessage(ctx, parts...)
	if err != nil {
		return ports.ChatReply{}, fmt.Errorf("tool acknowledgment failed: %w", err)
	}
	return convertReply(resp), nil
}

// convertReply joins the text parts of the first candidate and collects its
// function calls.
func convertReply(resp *genai.GenerateContentResponse) ports.ChatReply {
	var reply ports.ChatReply
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return reply
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.Thought {
			continue
		}
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			reply.Calls = append(reply.Calls, domain.ToolInvocation{
				ID:   part.FunctionCall.ID,
				Name: domain.ToolName(part.FunctionCall.Name),
				Args: part.FunctionCall.Args,
			})
		}
	}
	reply.Text = strings.TrimSpace(text.String())
	return reply
}
