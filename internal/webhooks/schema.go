package webhooks

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed paystack_event.schema.json
var paystackEventSchema string

// ErrInvalidEvent is returned for payloads that do not match the event schema.
var ErrInvalidEvent = errors.New("invalid webhook event")

type EventValidator struct {
	schema *jsonschema.Schema
}

func NewEventValidator() (*EventValidator, error) {
	s, err := jsonschema.CompileString("https://bookwell.dev/schemas/paystack-event", paystackEventSchema)
	if err != nil {
		return nil, fmt.Errorf("compile event schema: %w", err)
	}
	return &EventValidator{schema: s}, nil
}

// Validate hard-rejects a body that is not a well-formed event.
func (v *EventValidator) Validate(body []byte) error {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}
