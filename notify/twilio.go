package notify

import (
	"fmt"
	"html"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"truckwatch/config"
)

// Twilio sends SMS and places voice calls through the Twilio REST API.
// SMS prefers a Messaging Service SID when one is configured; it handles
// carrier/A2P rules better than a bare from-number.
type Twilio struct {
	client       *twilio.RestClient
	from         string
	to           string
	messagingSID string
}

// NewTwilio builds a Twilio channel from credentials.
func NewTwilio(cfg config.TwilioConfig) (*Twilio, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("missing twilio sid/token")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.SID,
		Password: cfg.Token,
	})
	return &Twilio{
		client:       client,
		from:         cfg.From,
		to:           cfg.To,
		messagingSID: cfg.MessagingSID,
	}, nil
}

// SendText delivers one SMS to the configured alert number.
func (t *Twilio) SendText(body string) error {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(t.to)
	params.SetBody(body)
	if t.messagingSID != "" {
		params.SetMessagingServiceSid(t.messagingSID)
	} else {
		params.SetFrom(t.from)
	}
	if _, err := t.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio sms: %w", err)
	}
	return nil
}

// PlaceCall rings the alert number and speaks sayText.
func (t *Twilio) PlaceCall(sayText string) error {
	twiml := fmt.Sprintf(`<Response><Say voice="Polly.Matthew">%s</Say></Response>`,
		html.EscapeString(sayText))
	params := &twilioapi.CreateCallParams{}
	params.SetTo(t.to)
	params.SetFrom(t.from)
	params.SetTwiml(twiml)
	if _, err := t.client.Api.CreateCall(params); err != nil {
		return fmt.Errorf("twilio voice: %w", err)
	}
	return nil
}
