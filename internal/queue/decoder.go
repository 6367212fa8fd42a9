package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"github.com/nikolayk812/orderfan/internal/domain"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"strings"
)

// envelopeField holds the order when a message was relayed from the topic
// into the queue, e.g. {"Type":"Notification","Message":"{\"id\":1,...}"}.
const envelopeField = "Message"

const orderSchemaURI = "urn:orderfan:schema:order"

const orderSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"id":        {"type": "integer"},
		"product":   {"type": "string"},
		"quantity":  {"type": "integer", "minimum": 0},
		"amount":    {"type": "integer"},
		"processed": {"type": "boolean"},
		"total":     {"type": "integer"}
	},
	"required": ["product", "quantity", "amount"]
}`

// Decoder turns a queue message body into an Order. It accepts both the raw
// order and an envelope carrying the order under "Message", without being
// told which one to expect. Decode has no side effects and is safe for
// concurrent use.
type Decoder struct {
	schema *jsonschema.Schema
}

func NewDecoder() (*Decoder, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(orderSchema))
	if err != nil {
		return nil, fmt.Errorf("jsonschema.UnmarshalJSON: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(orderSchemaURI, doc); err != nil {
		return nil, fmt.Errorf("c.AddResource: %w", err)
	}

	schema, err := c.Compile(orderSchemaURI)
	if err != nil {
		return nil, fmt.Errorf("c.Compile: %w", err)
	}

	return &Decoder{schema: schema}, nil
}

func (d *Decoder) Decode(body []byte) (domain.Order, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return domain.Order{}, fmt.Errorf("jsonschema.UnmarshalJSON: %w", err)
	}

	rawErr := d.schema.Validate(inst)
	if rawErr == nil {
		return unmarshalOrder(body)
	}

	inner, ok, err := envelopeMessage(inst)
	if err != nil {
		return domain.Order{}, fmt.Errorf("envelopeMessage: %w", err)
	}
	if !ok {
		return domain.Order{}, fmt.Errorf("schema.Validate: %w", rawErr)
	}

	innerInst, err := jsonschema.UnmarshalJSON(bytes.NewReader(inner))
	if err != nil {
		return domain.Order{}, fmt.Errorf("envelope: jsonschema.UnmarshalJSON: %w", err)
	}

	if err := d.schema.Validate(innerInst); err != nil {
		return domain.Order{}, fmt.Errorf("envelope: schema.Validate: %w", err)
	}

	return unmarshalOrder(inner)
}

// envelopeMessage extracts the envelope field, which is either a string
// holding JSON or a nested object.
func envelopeMessage(inst any) ([]byte, bool, error) {
	obj, ok := inst.(map[string]any)
	if !ok {
		return nil, false, nil
	}

	v, ok := obj[envelopeField]
	if !ok {
		return nil, false, nil
	}

	switch msg := v.(type) {
	case string:
		return []byte(msg), true, nil
	case map[string]any:
		b, err := json.Marshal(msg)
		if err != nil {
			return nil, false, fmt.Errorf("json.Marshal: %w", err)
		}
		return b, true, nil
	default:
		return nil, false, nil
	}
}

func unmarshalOrder(b []byte) (domain.Order, error) {
	var o domain.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return domain.Order{}, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return o, nil
}
