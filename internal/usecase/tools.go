package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"nora/internal/domain"
	"nora/internal/metrics"
	"nora/internal/ports"
	"nora/internal/record"
)

// CallEnder schedules the end of the live call.
type CallEnder interface {
	ScheduleEnd()
}

// ToolDispatcher executes tool invocations from either channel against the
// shared record, transcript, and UI.
type ToolDispatcher struct {
	store      *record.Store
	transcript *Transcript
	photos     *PhotoCatalog
	email      *EmailDispatcher
	events     ports.EventSink
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu    sync.Mutex
	ender CallEnder
}

func NewToolDispatcher(
	store *record.Store,
	transcript *Transcript,
	photos *PhotoCatalog,
	email *EmailDispatcher,
	events ports.EventSink,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ToolDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolDispatcher{
		store:      store,
		transcript: transcript,
		photos:     photos,
		email:      email,
		events:     events,
		metrics:    m,
		logger:     logger,
	}
}

// SetCallEnder registers the target of end_call.
func (d *ToolDispatcher) SetCallEnder(ender CallEnder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ender = ender
}

// Dispatch runs calls in order. Every call, known or not, is acknowledged
// with a success result.
func (d *ToolDispatcher) Dispatch(ctx context.Context, origin domain.RecordOrigin, calls []domain.ToolInvocation) []domain.ToolResult {
	results := make([]domain.ToolResult, 0, len(calls))
	for _, call := range calls {
		d.dispatchOne(ctx, origin, call)
		results = append(results, domain.SuccessResult(call))
	}
	return results
}

func (d *ToolDispatcher) dispatchOne(ctx context.Context, origin domain.RecordOrigin, call domain.ToolInvocation) {
	d.metrics.RecordToolInvocation(string(call.Name), string(origin))
	logger := d.logger.With(slog.String("tool", string(call.Name)), slog.String("channel", string(origin)))

	switch call.Name {
	case domain.ToolUpdateRecord:
		update := domain.RecordUpdateFromArgs(call.Args)
		if len(update) == 0 {
			logger.Debug("record update carried no known fields")
			return
		}
		if _, err := d.store.Merge(ctx, origin, update); err != nil {
			logger.Warn("record persistence failed", slog.Any("err", err))
			d.metrics.RecordPersistenceError()
			d.events.SessionError(domain.ErrorCodePersistence, fmt.Sprintf("failed to save customer card: %v", err))
		}

	case domain.ToolPostChatMessage:
		d.transcript.Append(domain.RoleModel, call.StringArg("message"))

	case domain.ToolShowPhoto:
		d.events.PhotoShown(d.photos.Resolve(call.StringArg("photoType")))
		d.transcript.Append(domain.RoleModel, call.StringArg("message"))

	case domain.ToolSendConfirmation:
		address := call.StringArg("email")
		if address == "" {
			address = d.store.Snapshot().Email
		}
		d.email.Send(address, call.StringArg("details"))

	case domain.ToolEndCall:
		d.mu.Lock()
		ender := d.ender
		d.mu.Unlock()
		if ender == nil {
			logger.Debug("end_call with no call controller")
			return
		}
		ender.ScheduleEnd()

	default:
		logger.Warn("ignoring unknown tool")
	}
}
