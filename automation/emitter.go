package automation

import (
	"riseloop/models"

	"github.com/sirupsen/logrus"
)

// Emit appends an event to the store. It never returns an error: the
// triggering business action (a journal save, a webhook) must not fail
// because automation could not record it. A failed write is logged and the
// caller gets nil; the event is simply lost, which is the one accepted gap
// in the at-least-once pipeline.
func (e *Engine) Emit(eventName, subjectID string, payload map[string]interface{}) *models.AutomationEvent {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	event := models.AutomationEvent{
		EventName: eventName,
		SubjectID: subjectID,
		Payload:   payload,
	}
	if err := e.DB.Create(&event).Error; err != nil {
		e.Logger.WithError(err).WithFields(logrus.Fields{
			"event_name": eventName,
			"subject_id": subjectID,
		}).Error("failed to persist event, dropping")
		return nil
	}
	return &event
}

// EmitAndDispatch is the real-time path: persist, then dispatch inline
// within the caller's request. When persistence failed there is nothing to
// dispatch and an empty result comes back.
func (e *Engine) EmitAndDispatch(eventName, subjectID string, payload map[string]interface{}) (*models.AutomationEvent, DispatchResult) {
	event := e.Emit(eventName, subjectID, payload)
	if event == nil {
		return nil, DispatchResult{Errors: []string{"event was not persisted"}}
	}
	return event, e.Dispatch(event)
}
