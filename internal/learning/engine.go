// Package learning is the progression and mastery engine: it grades lesson
// and scene submissions idempotently, derives unlock and completion state,
// schedules vocabulary reviews and picks the learner's next activity.
package learning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/p-n-ai/pai-lingo/internal/content"
	"github.com/p-n-ai/pai-lingo/internal/platform/config"
	"github.com/p-n-ai/pai-lingo/internal/srs"
	"github.com/p-n-ai/pai-lingo/internal/store"
)

// MaxIdempotencyKeyLen bounds client-supplied idempotency keys, in bytes.
const MaxIdempotencyKeyLen = 64

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// EngineConfig holds dependencies for the learning engine.
type EngineConfig struct {
	Store        store.Store
	Settings     *config.LearningSettings // nil uses config.DefaultLearningSettings
	Clock        Clock
	Results      store.ResultCache
	Publisher    Publisher
	Achievements AchievementTrigger
}

// Engine implements the learner-facing operations. It holds no per-learner
// state and is safe for concurrent use.
type Engine struct {
	store        store.Store
	settings     config.LearningSettings
	scheduler    *srs.Scheduler
	clock        Clock
	results      store.ResultCache
	publisher    Publisher
	achievements AchievementTrigger
}

// NewEngine creates a new learning engine.
func NewEngine(cfg EngineConfig) *Engine {
	st := cfg.Store
	if st == nil {
		st = store.NewMemoryStore()
	}
	settings := config.DefaultLearningSettings()
	if cfg.Settings != nil {
		settings = *cfg.Settings
		settings.VocabularyIntervals = append([]int(nil), cfg.Settings.VocabularyIntervals...)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = ClockFunc(time.Now)
	}
	results := cfg.Results
	if results == nil {
		results = store.NopResultCache{}
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = NopPublisher{}
	}
	achievements := cfg.Achievements
	if achievements == nil {
		achievements = Granter{}
	}
	return &Engine{
		store:        st,
		settings:     settings,
		scheduler:    srs.NewScheduler(settings.VocabularyIntervals, settings.VocabularyWrongDelay),
		clock:        clock,
		results:      results,
		publisher:    publisher,
		achievements: achievements,
	}
}

// Settings returns the thresholds the engine was built with.
func (e *Engine) Settings() config.LearningSettings {
	s := e.settings
	s.VocabularyIntervals = append([]int(nil), e.settings.VocabularyIntervals...)
	return s
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}

func checkLearner(learnerID int64) error {
	if learnerID <= 0 {
		return ErrUnauthorized
	}
	return nil
}

// notFoundAs maps store.ErrNotFound to a NotFoundError for entity and
// wraps anything else.
func notFoundAs(err error, entity string, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return fmt.Errorf("loading %s %d: %w", entity, id, err)
}

// publishedCourse loads a course visible to learners.
func publishedCourse(ctx context.Context, r store.ContentReader, courseID int64) (content.Course, error) {
	c, err := r.GetCourse(ctx, courseID)
	if err != nil {
		return c, notFoundAs(err, "course", courseID)
	}
	if !c.Published {
		return c, &NotFoundError{Entity: "course", ID: courseID}
	}
	return c, nil
}

// lessonCourse resolves the published course a lesson belongs to.
func lessonCourse(ctx context.Context, r store.ContentReader, l content.Lesson) (content.Course, error) {
	t, err := r.GetTopic(ctx, l.TopicID)
	if err != nil {
		return content.Course{}, notFoundAs(err, "lesson", l.ID)
	}
	c, err := publishedCourse(ctx, r, t.CourseID)
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return c, &NotFoundError{Entity: "lesson", ID: l.ID}
	}
	return c, err
}

// publishedScene loads a scene visible to learners.
func publishedScene(ctx context.Context, r store.ContentReader, sceneID int64) (content.Scene, error) {
	s, err := r.GetScene(ctx, sceneID)
	if err != nil {
		return s, notFoundAs(err, "scene", sceneID)
	}
	if !s.Published {
		return s, &NotFoundError{Entity: "scene", ID: sceneID}
	}
	return s, nil
}
