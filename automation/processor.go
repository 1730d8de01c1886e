package automation

import (
	"fmt"
	"time"

	"riseloop/models"
)

type ProcessResult struct {
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

// ProcessUnhandledEvents re-dispatches every event still marked unhandled
// that is older than the grace period. The grace period keeps the sweep from
// racing a real-time dispatch that is still in flight. There is no cursor:
// each run re-scans the unhandled set, which is safe because every action is
// idempotent.
func (e *Engine) ProcessUnhandledEvents(grace time.Duration) (ProcessResult, error) {
	result := ProcessResult{Errors: []string{}}

	cutoff := time.Now().Add(-grace)
	var events []models.AutomationEvent
	if err := e.DB.Where("handled_at IS NULL AND created_at < ?", cutoff).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		// Losing the work set is the one fatal failure mode for a run.
		return result, fmt.Errorf("failed to fetch unhandled events: %w", err)
	}

	for i := range events {
		event := &events[i]
		result.Processed++

		dispatch := e.Dispatch(event)
		if dispatch.Retry {
			result.Failed++
		} else {
			result.Succeeded++
		}
		for _, msg := range dispatch.Errors {
			result.Errors = append(result.Errors, fmt.Sprintf("event %d: %s", event.ID, msg))
		}
	}

	if result.Processed > 0 {
		e.Logger.WithField("processed", result.Processed).
			WithField("succeeded", result.Succeeded).
			WithField("failed", result.Failed).
			Info("catch-up sweep finished")
	}
	return result, nil
}
