package email

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// CompositeEmailSender fans a notification out to the primary transport and
// any configured sinks (file log, Redis capture).
type CompositeEmailSender struct {
	senders []Sender
}

func NewCompositeEmailSender(senders ...Sender) *CompositeEmailSender {
	cs := &CompositeEmailSender{}
	for _, s := range senders {
		cs.AddSender(s)
	}
	return cs
}

// AddSender ignores nil senders.
func (cs *CompositeEmailSender) AddSender(sender Sender) {
	if sender == nil {
		return
	}
	cs.senders = append(cs.senders, sender)
}

// Send delivers to every sender even when an earlier one fails. The returned
// error joins all failures so asynq retries the task.
func (cs *CompositeEmailSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if len(cs.senders) == 0 {
		return errors.New("no email senders configured")
	}

	var failed []error
	for i, sender := range cs.senders {
		err := sender.Send(ctx, to, subject, rawMessage)
		if err == nil {
			continue
		}
		zap.L().Warn("email sender failed",
			zap.Int("sender", i),
			zap.String("type", fmt.Sprintf("%T", sender)),
			zap.Strings("to", to),
			zap.Error(err))
		failed = append(failed, err)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d email senders failed: %w", len(failed), len(cs.senders), errors.Join(failed...))
	}
	return nil
}
