package content_test

import (
	"errors"
	"testing"

	"github.com/p-n-ai/pai-lingo/internal/content"
)

func TestParseStepPayload(t *testing.T) {
	tests := []struct {
		name    string
		typ     content.StepType
		raw     string
		want    []string
		wantErr bool
	}{
		{
			name: "choice",
			typ:  content.StepChoice,
			raw:  `[{"text":"Hola","isCorrect":true},{"text":"Adiós","isCorrect":false},{"text":"Buenas"}]`,
			want: []string{"Hola"},
		},
		{
			name: "input with variants",
			typ:  content.StepInput,
			raw:  `{"correctAnswer":"gracias","acceptableAnswers":["muchas gracias"]}`,
			want: []string{"gracias", "muchas gracias"},
		},
		{name: "choice not an array", typ: content.StepChoice, raw: `{"text":"x"}`, wantErr: true},
		{name: "choice flag wrong type", typ: content.StepChoice, raw: `[{"text":"x","isCorrect":"yes"}]`, wantErr: true},
		{name: "input missing answer", typ: content.StepInput, raw: `{"acceptableAnswers":["a"]}`, wantErr: true},
		{name: "malformed json", typ: content.StepInput, raw: `{"correctAnswer":`, wantErr: true},
		{name: "empty", typ: content.StepChoice, raw: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := content.ParseStepPayload(tt.typ, []byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStepPayload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			got := p.Accepted()
			if len(got) != len(tt.want) {
				t.Fatalf("Accepted() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Accepted()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseStepPayload_Narration(t *testing.T) {
	_, err := content.ParseStepPayload(content.StepNarration, []byte(`{}`))
	if !errors.Is(err, content.ErrNoPayload) {
		t.Errorf("error = %v, want ErrNoPayload", err)
	}
}

func TestParseEnums(t *testing.T) {
	if _, err := content.ParseStepType("choice"); err != nil {
		t.Errorf("ParseStepType(choice) error = %v", err)
	}
	if _, err := content.ParseStepType("CHOICE"); !errors.Is(err, content.ErrUnrecognized) {
		t.Errorf("ParseStepType(CHOICE) error = %v, want ErrUnrecognized", err)
	}
	if _, err := content.ParseSceneType("story"); err != nil {
		t.Errorf("ParseSceneType(story) error = %v", err)
	}
	if _, err := content.ParseExerciseType(""); !errors.Is(err, content.ErrUnrecognized) {
		t.Errorf("ParseExerciseType(\"\") error = %v, want ErrUnrecognized", err)
	}
}
