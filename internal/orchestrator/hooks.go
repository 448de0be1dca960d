package orchestrator

import (
	"log/slog"

	"github.com/ShayCichocki/conductor/internal/logging"
	"github.com/ShayCichocki/conductor/internal/registry"
	"github.com/ShayCichocki/conductor/internal/state"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// TransitionHook returns a lifecycle.Options.OnTransition callback that
// records every terminal snapshot in the journal and emits EventRunFinished.
// Either rec or emitter may be nil.
func TransitionHook(rec state.RunRecorder, emitter *EventEmitter, logger *slog.Logger) func(models.RunSnapshot) {
	logger = logging.OrDiscard(logger)
	return func(s models.RunSnapshot) {
		if rec != nil {
			if err := rec.RecordRun(s); err != nil {
				logger.Warn("journal write failed", "run_id", s.RunID, "error", err)
			}
		}
		emitter.Emit(Event{
			Type:      EventRunFinished,
			RunID:     s.RunID,
			TaskID:    s.TaskID,
			AgentName: s.AgentName,
			Status:    s.Status,
			Error:     s.Error,
			Duration:  msDuration(s.DurationMs),
		})
	}
}

// WatchRegistry emits EventRegistryReloaded after every reload of reg.
func WatchRegistry(reg *registry.Registry, emitter *EventEmitter) {
	reg.OnReload(func(s *registry.Snapshot) {
		emitter.Emit(Event{
			Type:    EventRegistryReloaded,
			Message: s.Dir(),
		})
	})
}
