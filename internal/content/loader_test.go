package content_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/pai-lingo/internal/content"
)

const spanishYAML = `
courses:
  - id: 1
    title: "Spanish Basics"
    language: es
    published: true
    topics:
      - id: 10
        title: Greetings
        order: 1
        lessons:
          - id: 100
            title: Hello
            order: 1
            theory: "hola = hello"
            exercises:
              - id: 1000
                type: translation
                prompt: "Hello"
                answer: "Hola"
                order: 1
              - id: 1001
                type: multiple_choice
                prompt: "Pick goodbye"
                answer: "adiós"
                order: 2
scenes:
  - id: 5
    title: "At the cafe"
    type: dialogue
    order: 1
    published: true
    steps:
      - id: 50
        order: 1
        speaker: Waiter
        text: "Buenos días, what would you like?"
        type: narration
      - id: 51
        order: 2
        speaker: You
        text: "Order a coffee"
        type: choice
        payload:
          - text: "Un café, por favor"
            isCorrect: true
          - text: "Una mesa"
            isCorrect: false
      - id: 52
        order: 3
        speaker: You
        text: "Say thank you"
        type: input
        payload: '{"correctAnswer":"gracias","acceptableAnswers":["muchas gracias"]}'
`

func writeContent(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoadDir(t *testing.T) {
	dir := writeContent(t, map[string]string{
		"courses/spanish.yaml": spanishYAML,
		"README.md":            "# not content",
	})

	b, err := content.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(b.Courses) != 1 || len(b.Topics) != 1 || len(b.Lessons) != 1 {
		t.Fatalf("got %d courses, %d topics, %d lessons", len(b.Courses), len(b.Topics), len(b.Lessons))
	}
	if len(b.Exercises) != 2 {
		t.Errorf("Exercises = %d, want 2", len(b.Exercises))
	}
	if b.Exercises[0].LessonID != 100 || b.Exercises[0].CorrectAnswer != "Hola" {
		t.Errorf("exercise = %+v", b.Exercises[0])
	}
	if b.Topics[0].CourseID != 1 || b.Lessons[0].TopicID != 10 {
		t.Error("parent ids were not carried to children")
	}
	if len(b.Steps) != 3 {
		t.Fatalf("Steps = %d, want 3", len(b.Steps))
	}

	p, err := content.ParseStepPayload(b.Steps[1].Type, b.Steps[1].Payload)
	if err != nil {
		t.Fatalf("inline YAML payload did not parse: %v", err)
	}
	if got := p.Accepted(); len(got) != 1 || got[0] != "Un café, por favor" {
		t.Errorf("Accepted() = %v", got)
	}
	if b.Steps[0].Payload != nil {
		t.Errorf("narration payload = %s, want nil", b.Steps[0].Payload)
	}
}

func TestLoadDir_UnknownExerciseType(t *testing.T) {
	dir := writeContent(t, map[string]string{"bad.yaml": `
courses:
  - id: 1
    topics:
      - id: 2
        lessons:
          - id: 3
            exercises:
              - id: 4
                type: essay
`})

	_, err := content.LoadDir(dir)
	if !errors.Is(err, content.ErrUnrecognized) {
		t.Fatalf("LoadDir() error = %v, want ErrUnrecognized", err)
	}
}

func TestLoadDir_SkipsInvalidYAML(t *testing.T) {
	dir := writeContent(t, map[string]string{
		"broken.yaml": "courses: [ {",
		"ok.yml":      spanishYAML,
	})

	b, err := content.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(b.Courses) != 1 {
		t.Errorf("Courses = %d, want 1", len(b.Courses))
	}
}

func TestLoadDir_Empty(t *testing.T) {
	b, err := content.LoadDir(t.TempDir())
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(b.Courses)+len(b.Scenes) != 0 {
		t.Error("expected empty bundle")
	}
}
