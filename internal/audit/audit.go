// Package audit records business actions and security events as structured
// log entries with unique, time-sortable event ids.
package audit

import (
	"go.uber.org/zap"

	"github.com/wenqu/backend-api-scaffold/pkg/utilities"
)

// Recorder writes audit entries through the shared zap logger. It carries no
// state beyond the logger and is safe for concurrent use.
type Recorder struct {
	log *zap.SugaredLogger
}

func NewRecorder(logger *zap.SugaredLogger) *Recorder {
	return &Recorder{log: logger.Named("audit")}
}

// Business records a completed business action (register, login, role
// change...). keysAndValues follow the zap sugared convention.
func (r *Recorder) Business(action string, keysAndValues ...any) {
	if r == nil || r.log == nil {
		return
	}
	kv := append([]any{"event_id", utilities.NewSnowflakeID(), "action", action}, keysAndValues...)
	r.log.Infow("business", kv...)
}

// Security records a security-relevant event (failed login, lockout,
// rejected token). These always log, regardless of level tuning.
func (r *Recorder) Security(event string, keysAndValues ...any) {
	if r == nil || r.log == nil {
		return
	}
	kv := append([]any{"event_id", utilities.NewSnowflakeID(), "event", event}, keysAndValues...)
	r.log.Warnw("security", kv...)
}
