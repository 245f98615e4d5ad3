package ports

import (
	"context"
	"io"

	"nora/internal/domain"
	"nora/internal/playback"
)

// CaptureConfig describes how the microphone should be captured.
type CaptureConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session yielding float32 little-endian samples.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg CaptureConfig) (AudioSession, error)
}

// OutputConfig describes the playback format of agent audio.
type OutputConfig struct {
	SampleRate int
	Channels   int
}

// AudioOutput opens a playback pipeline for one voice session.
type AudioOutput interface {
	Open(ctx context.Context, cfg OutputConfig) (playback.Pipeline, error)
}

// LiveSetup is sent once when a duplex session is opened.
type LiveSetup struct {
	SystemInstruction string
	Voice             string
}

// LiveHandlers is the dispatch table for inbound duplex events. Handlers may
// fire after the session has been torn down and must tolerate that.
type LiveHandlers struct {
	OnAudio         func(data string)
	OnInterrupted   func()
	OnToolCall      func(calls []domain.ToolInvocation) []domain.ToolResult
	OnTranscription func(source domain.TranscriptSource, text string)
	OnError         func(err error)
	OnClose         func()
}

// LiveSession is an established duplex connection. Sends are fire-and-forget.
type LiveSession interface {
	SendAudio(blob domain.MediaBlob) error
	SendMedia(blob domain.MediaBlob) error
	SendText(text string) error
	Close() error
}

// LiveProvider opens duplex voice sessions; Connect returns once the remote
// side has accepted the setup.
type LiveProvider interface {
	Connect(ctx context.Context, setup LiveSetup, handlers LiveHandlers) (LiveSession, error)
}

// ChatTurn is one user turn of the text channel. Context, when set, is sent
// alongside the text as an extra part.
type ChatTurn struct {
	Text    string
	Context string
}

// ChatReply is the model's answer to a turn.
type ChatReply struct {
	Text  string
	Calls []domain.ToolInvocation
}

// ChatSession is a turn-based text conversation.
type ChatSession interface {
	Send(ctx context.Context, turn ChatTurn) (ChatReply, error)
	Acknowledge(ctx context.Context, results []domain.ToolResult) (ChatReply, error)
}

// ChatProvider creates text conversations.
type ChatProvider interface {
	StartChat(ctx context.Context, systemInstruction string) (ChatSession, error)
}

// RecordPersister saves and restores the customer card.
type RecordPersister interface {
	Load(ctx context.Context) (domain.CustomerRecord, error)
	Save(ctx context.Context, record domain.CustomerRecord) error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	SpeakingChanged(speaking bool)
	Caption(text string)
	RecordChanged(record domain.CustomerRecord)
	ChatMessage(message domain.ChatMessage)
	ChatPending(pending bool)
	PhotoShown(url string)
	EmailStatusChanged(status domain.EmailStatus)
	SessionError(code domain.ErrorCode, detail string)
}
