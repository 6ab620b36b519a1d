package content

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bundle is a flattened set of catalog entities ready for seeding.
type Bundle struct {
	Courses   []Course
	Topics    []Topic
	Lessons   []Lesson
	Exercises []Exercise
	Scenes    []Scene
	Steps     []SceneStep
}

// Merge appends other into b.
func (b *Bundle) Merge(other Bundle) {
	b.Courses = append(b.Courses, other.Courses...)
	b.Topics = append(b.Topics, other.Topics...)
	b.Lessons = append(b.Lessons, other.Lessons...)
	b.Exercises = append(b.Exercises, other.Exercises...)
	b.Scenes = append(b.Scenes, other.Scenes...)
	b.Steps = append(b.Steps, other.Steps...)
}

type fileDoc struct {
	Courses []courseDoc `yaml:"courses"`
	Scenes  []sceneDoc  `yaml:"scenes"`
}

type courseDoc struct {
	ID        int64      `yaml:"id"`
	Title     string     `yaml:"title"`
	Language  string     `yaml:"language"`
	Published bool       `yaml:"published"`
	Topics    []topicDoc `yaml:"topics"`
}

type topicDoc struct {
	ID      int64       `yaml:"id"`
	Title   string      `yaml:"title"`
	Order   int         `yaml:"order"`
	Lessons []lessonDoc `yaml:"lessons"`
}

type lessonDoc struct {
	ID        int64         `yaml:"id"`
	Title     string        `yaml:"title"`
	Order     int           `yaml:"order"`
	Theory    string        `yaml:"theory"`
	Exercises []exerciseDoc `yaml:"exercises"`
}

type exerciseDoc struct {
	ID     int64  `yaml:"id"`
	Type   string `yaml:"type"`
	Prompt string `yaml:"prompt"`
	Answer string `yaml:"answer"`
	Order  int    `yaml:"order"`
}

type sceneDoc struct {
	ID        int64     `yaml:"id"`
	Title     string    `yaml:"title"`
	Type      string    `yaml:"type"`
	Order     int       `yaml:"order"`
	Published bool      `yaml:"published"`
	Steps     []stepDoc `yaml:"steps"`
}

type stepDoc struct {
	ID      int64  `yaml:"id"`
	Order   int    `yaml:"order"`
	Speaker string `yaml:"speaker"`
	Text    string `yaml:"text"`
	Type    string `yaml:"type"`
	Media   string `yaml:"media"`
	// Payload may be a JSON string or an inline YAML structure.
	Payload any `yaml:"payload"`
}

// LoadDir walks rootDir and loads every YAML content file into one bundle.
// Files that are not valid YAML are skipped with a warning; files that
// parse but reference unknown exercise, scene or step types are an error.
func LoadDir(rootDir string) (Bundle, error) {
	var bundle Bundle
	files := 0
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		b, err := Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		bundle.Merge(b)
		files++
		return nil
	})
	if err != nil {
		return Bundle{}, fmt.Errorf("loading content: %w", err)
	}

	slog.Info("content loaded",
		"files", files,
		"courses", len(bundle.Courses),
		"lessons", len(bundle.Lessons),
		"scenes", len(bundle.Scenes),
	)
	return bundle, nil
}

// Parse decodes one YAML content document.
func Parse(data []byte) (Bundle, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping invalid content YAML", "error", err)
		return Bundle{}, nil
	}

	var b Bundle
	for _, c := range doc.Courses {
		b.Courses = append(b.Courses, Course{
			ID:        c.ID,
			Title:     c.Title,
			Language:  c.Language,
			Published: c.Published,
		})
		for _, t := range c.Topics {
			b.Topics = append(b.Topics, Topic{ID: t.ID, CourseID: c.ID, Title: t.Title, Order: t.Order})
			for _, l := range t.Lessons {
				b.Lessons = append(b.Lessons, Lesson{
					ID:      l.ID,
					TopicID: t.ID,
					Title:   l.Title,
					Theory:  l.Theory,
					Order:   l.Order,
				})
				for _, e := range l.Exercises {
					typ, err := ParseExerciseType(e.Type)
					if err != nil {
						return Bundle{}, fmt.Errorf("exercise %d: %w", e.ID, err)
					}
					b.Exercises = append(b.Exercises, Exercise{
						ID:            e.ID,
						LessonID:      l.ID,
						Type:          typ,
						Prompt:        e.Prompt,
						CorrectAnswer: e.Answer,
						Order:         e.Order,
					})
				}
			}
		}
	}

	for _, s := range doc.Scenes {
		typ, err := ParseSceneType(s.Type)
		if err != nil {
			return Bundle{}, fmt.Errorf("scene %d: %w", s.ID, err)
		}
		b.Scenes = append(b.Scenes, Scene{
			ID:        s.ID,
			Title:     s.Title,
			Type:      typ,
			Order:     s.Order,
			Published: s.Published,
		})
		for _, st := range s.Steps {
			stepType, err := ParseStepType(st.Type)
			if err != nil {
				return Bundle{}, fmt.Errorf("scene %d step %d: %w", s.ID, st.ID, err)
			}
			raw, err := payloadJSON(st.Payload)
			if err != nil {
				return Bundle{}, fmt.Errorf("scene %d step %d: %w", s.ID, st.ID, err)
			}
			b.Steps = append(b.Steps, SceneStep{
				ID:       st.ID,
				SceneID:  s.ID,
				Order:    st.Order,
				Speaker:  st.Speaker,
				Text:     st.Text,
				Type:     stepType,
				MediaRef: st.Media,
				Payload:  raw,
			})
		}
	}
	return b, nil
}

func payloadJSON(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(p) == "" {
			return nil, nil
		}
		return json.RawMessage(p), nil
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		return data, nil
	}
}
