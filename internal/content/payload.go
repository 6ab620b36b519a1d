package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrNoPayload is returned for step types that carry no answer payload.
var ErrNoPayload = errors.New("step type has no payload")

// Payload is the parsed answer payload of a gradable scene step.
type Payload interface {
	// Accepted returns every answer that counts as correct.
	Accepted() []string
	isPayload()
}

// Choice is one option of a choice step.
type Choice struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// ChoicePayload lists the options of a choice step.
type ChoicePayload struct {
	Choices []Choice
}

func (ChoicePayload) isPayload() {}

// Accepted returns the text of every correct choice.
func (p ChoicePayload) Accepted() []string {
	var out []string
	for _, c := range p.Choices {
		if c.IsCorrect {
			out = append(out, c.Text)
		}
	}
	return out
}

// InputPayload holds the answers accepted by a free-text input step.
type InputPayload struct {
	CorrectAnswer     string   `json:"correctAnswer"`
	AcceptableAnswers []string `json:"acceptableAnswers,omitempty"`
}

func (InputPayload) isPayload() {}

// Accepted returns the correct answer followed by the acceptable variants.
func (p InputPayload) Accepted() []string {
	return append([]string{p.CorrectAnswer}, p.AcceptableAnswers...)
}

const choiceSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["text"],
    "properties": {
      "text": {"type": "string"},
      "isCorrect": {"type": "boolean"}
    }
  }
}`

const inputSchema = `{
  "type": "object",
  "required": ["correctAnswer"],
  "properties": {
    "correctAnswer": {"type": "string"},
    "acceptableAnswers": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	choiceValidator = mustSchema(choiceSchema)
	inputValidator  = mustSchema(inputSchema)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compile payload schema: %v", err))
	}
	return s
}

// ParseStepPayload strictly parses the raw JSON payload of a step.
func ParseStepPayload(t StepType, raw []byte) (Payload, error) {
	switch t {
	case StepChoice:
		if err := validate(choiceValidator, raw); err != nil {
			return nil, err
		}
		var choices []Choice
		if err := json.Unmarshal(raw, &choices); err != nil {
			return nil, fmt.Errorf("decode choice payload: %w", err)
		}
		return ChoicePayload{Choices: choices}, nil
	case StepInput:
		if err := validate(inputValidator, raw); err != nil {
			return nil, err
		}
		var in InputPayload
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("decode input payload: %w", err)
		}
		return in, nil
	case StepNarration:
		return nil, ErrNoPayload
	}
	return nil, fmt.Errorf("step type %q: %w", t, ErrUnrecognized)
}

func validate(schema *gojsonschema.Schema, raw []byte) error {
	if len(raw) == 0 {
		return errors.New("payload is empty")
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid payload: %s", strings.Join(msgs, "; "))
	}
	return nil
}
