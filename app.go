package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"nora/internal/bootstrap"
	"nora/internal/domain"
	"nora/internal/usecase"
)

const (
	eventSession  = "nora:session"
	eventSpeaking = "nora:speaking"
	eventCaption  = "nora:caption"
	eventRecord   = "nora:record"
	eventMessage  = "nora:message"
	eventPending  = "nora:pending"
	eventPhoto    = "nora:photo"
	eventEmail    = "nora:email"
	eventError    = "nora:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services bootstrap.Services
	ready    bool
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.ready = true
	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady)
	a.RecordChanged(services.Store.Snapshot())
}

func (a *App) shutdown(_ context.Context) {
	if !a.ready {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.services.Shutdown(ctx); err != nil {
		a.services.Logger.Warn("shutdown", "err", err)
	}
}

// StartCall opens the live voice call.
func (a *App) StartCall() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	// Failures are already surfaced through session events.
	if err := a.services.Voice.Start(a.ctx); err != nil {
		return a.services.Voice.Status(), err
	}
	return a.services.Voice.Status(), nil
}

// EndCall hangs up. Ending when no call is up is not an error.
func (a *App) EndCall() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Voice.End(); err != nil && !errors.Is(err, usecase.ErrNoActiveSession) {
		return err
	}
	return nil
}

// UploadImage forwards a data URL image into the live call.
func (a *App) UploadImage(dataURL string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.uploadResult(a.services.Voice.UploadImage(dataURL))
}

// UploadImageFile opens a native file picker and forwards the chosen image.
func (a *App) UploadImageFile() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	path, err := runtime.OpenFileDialog(a.ctx, runtime.OpenDialogOptions{
		Title: "Choose a photo",
		Filters: []runtime.FileFilter{{
			DisplayName: "Images",
			Pattern:     "*.png;*.jpg;*.jpeg;*.webp;*.gif",
		}},
	})
	if err != nil {
		return err
	}
	if path == "" {
		return nil
	}
	return a.uploadResult(a.services.Voice.UploadImageFile(path))
}

// uploadResult drops uploads made outside a call, the way the widget
// ignores its photo button while idle.
func (a *App) uploadResult(err error) error {
	if err == nil || errors.Is(err, usecase.ErrNoActiveSession) {
		return nil
	}
	a.SessionError(domain.ErrorCodeUpload, err.Error())
	return err
}

// SendChatMessage runs one text turn.
func (a *App) SendChatMessage(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Chat.Send(a.ctx, text)
}

// GetStatus returns the current call status.
func (a *App) GetStatus() domain.Status {
	if !a.ready {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateError, Active: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle, Active: false}
	}
	return a.services.Voice.Status()
}

func (a *App) GetRecord() domain.CustomerRecord {
	if !a.ready {
		return domain.CustomerRecord{}
	}
	return a.services.Store.Snapshot()
}

func (a *App) GetMessages() []domain.ChatMessage {
	if !a.ready {
		return nil
	}
	return a.services.Chat.Messages()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if !a.ready {
		return map[string]string{}
	}

	cfg := a.services.Config
	return map[string]string{
		"provider":     "Gemini",
		"liveModel":    cfg.Gemini.LiveModel,
		"chatModel":    cfg.Gemini.ChatModel,
		"voice":        cfg.Gemini.Voice,
		"audioBackend": cfg.Audio.Backend,
		"audioInput":   cfg.Audio.InputDevice,
		"memoryFile":   cfg.Memory.Path,
		"metricsAddr":  a.services.MetricsAddr(),
		"apiKeySet":    fmt.Sprintf("%t", cfg.Gemini.APIKey != ""),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if !a.ready {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) emit(name string, payload any) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, name, payload)
}

// SessionStateChanged emits call lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	a.emit(eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

func (a *App) SpeakingChanged(speaking bool) {
	a.emit(eventSpeaking, map[string]bool{"speaking": speaking})
}

func (a *App) Caption(text string) {
	a.emit(eventCaption, map[string]string{"text": text})
}

func (a *App) RecordChanged(rec domain.CustomerRecord) {
	a.emit(eventRecord, rec)
}

func (a *App) ChatMessage(message domain.ChatMessage) {
	a.emit(eventMessage, message)
}

func (a *App) ChatPending(pending bool) {
	a.emit(eventPending, map[string]bool{"pending": pending})
}

func (a *App) PhotoShown(url string) {
	a.emit(eventPhoto, map[string]string{"url": url})
}

func (a *App) EmailStatusChanged(status domain.EmailStatus) {
	a.emit(eventEmail, map[string]string{"status": string(status)})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.emit(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady:
		return "Ready"
	case domain.SessionReasonConnecting:
		return "Connecting..."
	case domain.SessionReasonConnected:
		return "Call connected"
	case domain.SessionReasonUserEnded:
		return "Call ended"
	case domain.SessionReasonAgentEnded:
		return "The assistant ended the call"
	case domain.SessionReasonRemoteClosed:
		return "Connection closed"
	case domain.SessionReasonMicrophoneDenied:
		return "Microphone permission denied"
	case domain.SessionReasonMicrophoneFailed:
		return "Microphone stopped working"
	case domain.SessionReasonPlaybackFailed:
		return "Audio playback unavailable"
	case domain.SessionReasonTransportFailed:
		return "Connection failed"
	case domain.SessionReasonShutdown:
		return "Shutting down"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeMicrophone:
		return "Microphone issue"
	case domain.ErrorCodePlayback:
		return "Audio playback issue"
	case domain.ErrorCodeTransport:
		return "Connection issue"
	case domain.ErrorCodeDecode:
		return "Audio decode issue"
	case domain.ErrorCodeUpload:
		return "Image upload failed"
	case domain.ErrorCodeChat:
		return "Chat reply failed"
	case domain.ErrorCodePersistence:
		return "Could not save the customer card"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
