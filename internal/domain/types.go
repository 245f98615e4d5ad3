package domain

import "time"

// SessionState models the voice call lifecycle.
type SessionState string

const (
	SessionStateIdle             SessionState = "idle"
	SessionStateConnecting       SessionState = "connecting"
	SessionStateActive           SessionState = "active"
	SessionStateError            SessionState = "error"
	SessionStatePermissionDenied SessionState = "permission_denied"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady            SessionStateReason = "ready"
	SessionReasonConnecting       SessionStateReason = "connecting"
	SessionReasonConnected        SessionStateReason = "connected"
	SessionReasonUserEnded        SessionStateReason = "user_ended"
	SessionReasonAgentEnded       SessionStateReason = "agent_ended"
	SessionReasonRemoteClosed     SessionStateReason = "remote_closed"
	SessionReasonMicrophoneDenied SessionStateReason = "microphone_denied"
	SessionReasonMicrophoneFailed SessionStateReason = "microphone_failed"
	SessionReasonPlaybackFailed   SessionStateReason = "playback_failed"
	SessionReasonTransportFailed  SessionStateReason = "transport_failed"
	SessionReasonShutdown         SessionStateReason = "shutdown"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup     ErrorCode = "startup"
	ErrorCodeMicrophone  ErrorCode = "microphone"
	ErrorCodePlayback    ErrorCode = "playback"
	ErrorCodeTransport   ErrorCode = "transport"
	ErrorCodeDecode      ErrorCode = "decode"
	ErrorCodeUpload      ErrorCode = "upload"
	ErrorCodeChat        ErrorCode = "chat"
	ErrorCodePersistence ErrorCode = "persistence"
)

// Status summarizes the current voice session.
type Status struct {
	State     SessionState `json:"state"`
	Active    bool         `json:"active"`
	Speaking  bool         `json:"speaking"`
	SessionID string       `json:"sessionId,omitempty"`
	Message   string       `json:"message,omitempty"`
}

// Role labels a chat transcript entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ChatMessage is one line of the text-channel transcript.
type ChatMessage struct {
	ID     string    `json:"id"`
	Role   Role      `json:"role"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
}

// EmailStatus drives the transient confirmation badge.
type EmailStatus string

const (
	EmailStatusIdle    EmailStatus = "idle"
	EmailStatusSending EmailStatus = "sending"
	EmailStatusSent    EmailStatus = "sent"
)

// MediaBlob is a text-encoded payload pushed into a live session.
type MediaBlob struct {
	MIMEType string
	Data     string
}

// TranscriptSource tells apart user speech from agent speech.
type TranscriptSource string

const (
	TranscriptSourceUser  TranscriptSource = "user"
	TranscriptSourceAgent TranscriptSource = "agent"
)
