package task

import (
	"context"
	"encoding/json"
	"errors"

	qport "github.com/lailtonjunior/ceriv-faltas/internal/infrastructure/queue/port"

	"github.com/sirupsen/logrus"
)

// NotifyMessageTaskType is the queue task name for push-notification fan-out.
const NotifyMessageTaskType = "chat:notify_message"

// NotifyMessageTaskPayload identifies the stored message and its parties.
type NotifyMessageTaskPayload struct {
	MessageID      string  `json:"message_id"`
	ConversationID string  `json:"conversation_id"`
	SenderType     string  `json:"sender_type"`
	PatientID      *string `json:"patient_id"`
	UserID         *string `json:"user_id"`
}

// Recipient names the participant on the other side of the message. Patient
// messages have no single staff recipient (the clinic side is a pool), so
// only staff-sent messages resolve to one.
func (p NotifyMessageTaskPayload) Recipient() string {
	if p.SenderType == "staff" && p.PatientID != nil {
		return *p.PatientID
	}
	return ""
}

// NotifyFunc pushes a notification to every live connection of a participant
// and reports how many received it.
type NotifyFunc func(participantID string, p NotifyMessageTaskPayload) int

// RegisterNotifyMessageTask binds the notification handler. Delivery is best
// effort: with no notify func, or no resolvable recipient, the dispatch is
// logged and the task succeeds. Chat delivery never depends on it.
func RegisterNotifyMessageTask(srv qport.Server, notify NotifyFunc, log logrus.FieldLogger) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	srv.Register(NotifyMessageTaskType, func(ctx context.Context, t qport.Task) error {
		var p NotifyMessageTaskPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			return errors.Join(err, qport.ErrNoRetry)
		}

		entry := log.WithFields(logrus.Fields{
			"message_id":      p.MessageID,
			"conversation_id": p.ConversationID,
			"sender_type":     p.SenderType,
		})

		recipient := p.Recipient()
		if notify == nil || recipient == "" {
			entry.Info("message notification dispatched")
			return nil
		}

		delivered := notify(recipient, p)
		entry.WithFields(logrus.Fields{
			"recipient": recipient,
			"delivered": delivered,
		}).Info("message notification dispatched")
		return nil
	})
}
