// Package notify defines the outbound alert channels. Every channel reports
// failure as an error value; callers treat a nil error as a delivered (or at
// least accepted) notification and always keep going on failure.
package notify

import (
	"errors"

	"go.uber.org/zap"
)

// TextSender delivers an SMS-style text notification.
type TextSender interface {
	SendText(body string) error
}

// VoiceCaller places a voice call that speaks the given text.
type VoiceCaller interface {
	PlaceCall(sayText string) error
}

// Multi fans a text out to several channels. Delivery counts as a success if
// any channel accepts the message.
type Multi struct {
	Senders []TextSender
}

// SendText tries every channel and returns nil if at least one succeeded.
func (m Multi) SendText(body string) error {
	if len(m.Senders) == 0 {
		return errors.New("no text channels configured")
	}
	var errs []error
	ok := false
	for _, s := range m.Senders {
		if err := s.SendText(body); err != nil {
			errs = append(errs, err)
		} else {
			ok = true
		}
	}
	if ok {
		return nil
	}
	return errors.Join(errs...)
}

// Console is a dry-run channel used when no real credentials are configured.
// It logs the would-be notification and reports success.
type Console struct {
	Log *zap.SugaredLogger
}

// SendText logs the body.
func (c Console) SendText(body string) error {
	c.Log.Infow("sms (dry run)", "body", body)
	return nil
}

// PlaceCall logs the say-text.
func (c Console) PlaceCall(sayText string) error {
	c.Log.Infow("voice call (dry run)", "say", sayText)
	return nil
}
