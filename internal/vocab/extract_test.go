package vocab

import (
	"slices"
	"testing"

	"github.com/p-n-ai/pai-lingo/internal/content"
)

func TestFromText(t *testing.T) {
	got := FromText("How are you? I'm fine")

	for _, want := range []string{"how", "are", "you", "fine", "i'm", "how are", "how are you"} {
		if !slices.Contains(got, want) {
			t.Errorf("FromText() missing %q in %v", want, got)
		}
	}
	for _, unwanted := range []string{"i", "m", "'"} {
		if slices.Contains(got, unwanted) {
			t.Errorf("FromText() should drop %q", unwanted)
		}
	}
}

func TestFromText_NoLongerThanTrigrams(t *testing.T) {
	got := FromText("one two three four")
	if slices.Contains(got, "one two three four") {
		t.Error("4-grams should not be emitted")
	}
	if !slices.Contains(got, "two three four") {
		t.Error("trailing trigram missing")
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"'Quoted' words", []string{"quoted", "words"}},
		{"don't STOP", []string{"don't", "stop"}},
		{"a b cd", []string{"cd"}},
		{"rock'n'roll!", []string{"rock'n'roll"}},
		{"café/niño", []string{"café", "niño"}},
		{"cafe\u0301 con leche", []string{"café", "con", "leche"}},
		{"नमस्ते दोस्त", []string{"नमस्ते", "दोस्त"}},
		{"'' 42 ?!", []string{}},
	}
	for _, tt := range tests {
		got := Tokenize(tt.in)
		if !slices.Equal(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFromTheoryList(t *testing.T) {
	got := FromTheoryList("One, Two, Three\ntwo;  Four   Five |six\tone")
	want := []string{"one", "two", "three", "four five", "six"}
	if !slices.Equal(got, want) {
		t.Errorf("FromTheoryList() = %v, want %v", got, want)
	}

	if got := FromTheoryList("One, Two, Three"); !slices.Equal(got, []string{"one", "two", "three"}) {
		t.Errorf("FromTheoryList(One, Two, Three) = %v", got)
	}
}

func TestDecomposedInput(t *testing.T) {
	composed := FromText("café con leche")
	decomposed := FromText("cafe\u0301 con leche")
	if !slices.Equal(composed, decomposed) {
		t.Errorf("FromText(NFD) = %v, want %v", decomposed, composed)
	}

	if got := NormalizePhrase(" Cafe\u0301! "); got != "café" {
		t.Errorf("NormalizePhrase(NFD) = %q, want %q", got, "café")
	}
	if got := FromTheoryList("nin\u0303o, cafe\u0301"); !slices.Equal(got, []string{"niño", "café"}) {
		t.Errorf("FromTheoryList(NFD) = %v", got)
	}

	s := NewSet()
	s.Add("café", "cafe\u0301")
	if s.Len() != 1 {
		t.Errorf("Set kept composed and decomposed forms apart: %v", s.Items())
	}
}

func TestFromTheoryList_SkipsStructured(t *testing.T) {
	if got := FromTheoryList("hola = hello\nadiós = goodbye"); got != nil {
		t.Errorf("FromTheoryList() = %v, want nil for '=' content", got)
	}
}

func TestFromStepPayload(t *testing.T) {
	choice := []byte(`[{"text":" Un café, por favor! ","isCorrect":true},{"text":"No","isCorrect":false}]`)
	if got := FromStepPayload(content.StepChoice, choice); !slices.Equal(got, []string{"un café, por favor"}) {
		t.Errorf("choice = %v", got)
	}

	input := []byte(`{"correctAnswer":"Gracias.","acceptableAnswers":["Muchas  gracias","gracias"]}`)
	if got := FromStepPayload(content.StepInput, input); !slices.Equal(got, []string{"gracias", "muchas gracias"}) {
		t.Errorf("input = %v", got)
	}
}

func TestFromStepPayload_Malformed(t *testing.T) {
	tests := []struct {
		name string
		typ  content.StepType
		raw  string
	}{
		{"broken json", content.StepChoice, `[{"text":`},
		{"wrong shape", content.StepInput, `["gracias"]`},
		{"narration", content.StepNarration, `{"correctAnswer":"x"}`},
		{"unknown type", content.StepType("quiz"), `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromStepPayload(tt.typ, []byte(tt.raw)); len(got) != 0 {
				t.Errorf("FromStepPayload() = %v, want nothing", got)
			}
		})
	}
}

func TestExtract_Dedupes(t *testing.T) {
	lessons := []content.Lesson{{ID: 1, Theory: "Hello, World"}}
	steps := []content.SceneStep{{ID: 2, Type: content.StepNarration, Text: "hello world again"}}

	got := Extract(lessons, steps)
	seen := map[string]int{}
	for _, k := range got {
		seen[k]++
	}
	for k, n := range seen {
		if n > 1 {
			t.Errorf("%q emitted %d times", k, n)
		}
	}
	if !slices.Contains(got, "hello world again") {
		t.Errorf("Extract() = %v, missing trigram", got)
	}
}

func TestSet_CaseInsensitive(t *testing.T) {
	s := NewSet()
	s.Add("Hola", "HOLA", " hola ", "")
	if s.Len() != 1 || !s.Contains("HoLa") {
		t.Errorf("Set = %v", s.Items())
	}
}
