package learning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-lingo/internal/content"
	"github.com/p-n-ai/pai-lingo/internal/store"
)

// ActivityKind names the variant of an Activity.
type ActivityKind string

const (
	ActivityLesson     ActivityKind = "lesson"
	ActivityScene      ActivityKind = "scene"
	ActivityVocabulary ActivityKind = "vocabulary"
)

// Activity is the learner's recommended next step. The set of variants is
// closed: LessonActivity, SceneActivity and VocabularyActivity.
type Activity interface {
	Kind() ActivityKind
	isActivity()
}

// LessonActivity points at the next lesson of the active course.
type LessonActivity struct {
	CourseID int64  `json:"course_id"`
	LessonID int64  `json:"lesson_id"`
	Title    string `json:"title"`
}

// SceneActivity points at the lowest unlocked, uncompleted scene.
type SceneActivity struct {
	SceneID int64  `json:"scene_id"`
	Title   string `json:"title"`
	Ordinal int    `json:"ordinal"`
}

// VocabularyActivity points at the earliest due vocabulary review.
type VocabularyActivity struct {
	ItemID      int64     `json:"item_id"`
	Word        string    `json:"word"`
	Translation string    `json:"translation"`
	DueAt       time.Time `json:"due_at"`
}

func (LessonActivity) Kind() ActivityKind     { return ActivityLesson }
func (SceneActivity) Kind() ActivityKind      { return ActivityScene }
func (VocabularyActivity) Kind() ActivityKind { return ActivityVocabulary }

func (LessonActivity) isActivity()     {}
func (SceneActivity) isActivity()      {}
func (VocabularyActivity) isActivity() {}

// Next picks the learner's next activity. The first matching rule wins:
// the lowest unfinished lesson of the active course when it is unlocked,
// then the lowest-ordinal unlocked scene not yet completed, then the
// earliest due vocabulary item. ok is false when the learner is caught up.
func (e *Engine) Next(ctx context.Context, learnerID int64) (Activity, bool, error) {
	if err := checkLearner(learnerID); err != nil {
		return nil, false, err
	}

	var (
		lesson *LessonActivity
		scene  *SceneActivity
		vocab  *VocabularyActivity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lesson, err = e.nextLesson(gctx, learnerID)
		return err
	})
	g.Go(func() error {
		var err error
		scene, err = e.nextScene(gctx, learnerID)
		return err
	})
	g.Go(func() error {
		var err error
		vocab, err = e.nextVocabulary(gctx, learnerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, false, fmt.Errorf("resolving next activity: %w", err)
	}

	switch {
	case lesson != nil:
		return *lesson, true, nil
	case scene != nil:
		return *scene, true, nil
	case vocab != nil:
		return *vocab, true, nil
	}
	return nil, false, nil
}

func (e *Engine) nextLesson(ctx context.Context, learnerID int64) (*LessonActivity, error) {
	uc, err := e.store.GetActiveCourse(ctx, learnerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading active course: %w", err)
	}
	course, err := e.store.GetCourse(ctx, uc.CourseID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading course %d: %w", uc.CourseID, err)
	}
	if !course.Published {
		return nil, nil
	}

	lessons, err := e.store.ListCourseLessons(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("loading course lessons: %w", err)
	}
	rows, err := e.store.ListLessonProgress(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("loading lesson progress: %w", err)
	}

	for i, st := range lessonStates(lessons, progressByLesson(rows)) {
		if st.Completed {
			continue
		}
		if !st.Unlocked {
			return nil, nil
		}
		return &LessonActivity{CourseID: course.ID, LessonID: st.LessonID, Title: lessons[i].Title}, nil
	}
	return nil, nil
}

func (e *Engine) nextScene(ctx context.Context, learnerID int64) (*SceneActivity, error) {
	v, err := e.loadSceneView(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	for i := range v.scenes {
		d := v.details(i, e.settings.SceneUnlockEveryLessons)
		if d.Unlocked && !d.Completed {
			return &SceneActivity{SceneID: d.Scene.ID, Title: d.Scene.Title, Ordinal: d.Ordinal}, nil
		}
	}
	return nil, nil
}

func (e *Engine) nextVocabulary(ctx context.Context, learnerID int64) (*VocabularyActivity, error) {
	due, err := e.store.ListDueVocabulary(ctx, learnerID, e.now())
	if err != nil {
		return nil, fmt.Errorf("loading due vocabulary: %w", err)
	}
	if len(due) == 0 {
		return nil, nil
	}
	first := due[0]
	item, err := e.store.GetVocabularyItem(ctx, first.ItemID)
	if err != nil {
		return nil, fmt.Errorf("loading vocabulary item %d: %w", first.ItemID, err)
	}
	return vocabularyActivity(item, first), nil
}

func vocabularyActivity(item content.VocabularyItem, uv store.UserVocabulary) *VocabularyActivity {
	return &VocabularyActivity{
		ItemID:      item.ID,
		Word:        item.Word,
		Translation: item.Translation,
		DueAt:       uv.NextReviewAt,
	}
}
