// Package content defines the course and scene catalog and loads it from
// YAML and spreadsheet sources.
package content

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnrecognized is returned when a stored or loaded enum value is unknown.
var ErrUnrecognized = errors.New("unrecognized value")

// Course is the top of the Course -> Topic -> Lesson -> Exercise hierarchy.
type Course struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Language  string `json:"language"`
	Published bool   `json:"published"`
}

// Topic groups lessons within a course.
type Topic struct {
	ID       int64  `json:"id"`
	CourseID int64  `json:"course_id"`
	Title    string `json:"title"`
	Order    int    `json:"order"`
}

// Lesson is an ordered unit within a topic.
type Lesson struct {
	ID      int64  `json:"id"`
	TopicID int64  `json:"topic_id"`
	Title   string `json:"title"`
	Theory  string `json:"theory,omitempty"`
	Order   int    `json:"order"`
}

// Exercise is a single gradable question within a lesson.
type Exercise struct {
	ID            int64        `json:"id"`
	LessonID      int64        `json:"lesson_id"`
	Type          ExerciseType `json:"type"`
	Prompt        string       `json:"prompt"`
	CorrectAnswer string       `json:"-"`
	Order         int          `json:"order"`
}

// Scene is a dialogue unit outside the course hierarchy.
type Scene struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Type      SceneType `json:"type"`
	Order     int       `json:"order"`
	Published bool      `json:"published"`
}

// SceneStep is one line of a scene.
type SceneStep struct {
	ID       int64           `json:"id"`
	SceneID  int64           `json:"scene_id"`
	Order    int             `json:"order"`
	Speaker  string          `json:"speaker"`
	Text     string          `json:"text"`
	Type     StepType        `json:"type"`
	MediaRef string          `json:"media_ref,omitempty"`
	Payload  json.RawMessage `json:"-"`
}

// Gradable reports whether learners answer this step.
func (s SceneStep) Gradable() bool {
	return s.Type == StepChoice || s.Type == StepInput
}

// VocabularyItem is a shared catalog entry.
type VocabularyItem struct {
	ID          int64  `json:"id"`
	Word        string `json:"word"`
	Translation string `json:"translation"`
	Example     string `json:"example,omitempty"`
}

// ExerciseType is the kind of a lesson exercise.
type ExerciseType string

const (
	ExerciseMultipleChoice ExerciseType = "multiple_choice"
	ExerciseTranslation    ExerciseType = "translation"
	ExerciseFillBlank      ExerciseType = "fill_blank"
	ExerciseListening      ExerciseType = "listening"
)

// ParseExerciseType maps a stored string to an ExerciseType.
func ParseExerciseType(s string) (ExerciseType, error) {
	switch t := ExerciseType(s); t {
	case ExerciseMultipleChoice, ExerciseTranslation, ExerciseFillBlank, ExerciseListening:
		return t, nil
	}
	return "", fmt.Errorf("exercise type %q: %w", s, ErrUnrecognized)
}

// StepType is the kind of a scene step.
type StepType string

const (
	StepNarration StepType = "narration"
	StepChoice    StepType = "choice"
	StepInput     StepType = "input"
)

// ParseStepType maps a stored string to a StepType.
func ParseStepType(s string) (StepType, error) {
	switch t := StepType(s); t {
	case StepNarration, StepChoice, StepInput:
		return t, nil
	}
	return "", fmt.Errorf("step type %q: %w", s, ErrUnrecognized)
}

// SceneType is the presentation style of a scene.
type SceneType string

const (
	SceneDialogue SceneType = "dialogue"
	SceneRoleplay SceneType = "roleplay"
	SceneStory    SceneType = "story"
)

// ParseSceneType maps a stored string to a SceneType.
func ParseSceneType(s string) (SceneType, error) {
	switch t := SceneType(s); t {
	case SceneDialogue, SceneRoleplay, SceneStory:
		return t, nil
	}
	return "", fmt.Errorf("scene type %q: %w", s, ErrUnrecognized)
}
