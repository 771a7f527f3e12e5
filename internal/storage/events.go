package storage

import (
	"time"

	"go.uber.org/zap"
)

// EventWriter is the interface for recording guarded-turn events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *TurnEvent)
	Close()
}

// TurnEvent captures the policy outcome of one guarded conversational
// turn for an identity.
type TurnEvent struct {
	RequestID     string
	Identity      string
	Timestamp     time.Time
	Phase         string // "admit" or "finalize"
	PayloadSize   uint32
	InputPreview  string
	OutputPreview string
	Refused       bool
	Violations    []string
	ToolsInvoked  []string
	LatencyMs     float32
}

// PreviewLength is the max chars stored in the preview columns.
const PreviewLength = 500

// TruncatePreview returns the first N runes of a payload for preview
// storage. It never splits a multi-byte UTF-8 character.
func TruncatePreview(payload string, maxLen int) string {
	runes := []rune(payload)
	if len(runes) <= maxLen {
		return payload
	}
	return string(runes[:maxLen])
}

// LogWriter is a fallback EventWriter for local development.
// It logs events as structured JSON to stdout via zap.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *TurnEvent) {
	w.logger.Info("turn_event",
		zap.String("request_id", event.RequestID),
		zap.String("identity", event.Identity),
		zap.String("phase", event.Phase),
		zap.Bool("refused", event.Refused),
		zap.Strings("violations", event.Violations),
		zap.Strings("tools_invoked", event.ToolsInvoked),
		zap.Float32("latency_ms", event.LatencyMs),
	)
}

func (w *LogWriter) Close() {}
