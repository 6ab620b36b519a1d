package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-lingo/internal/content"
	"github.com/p-n-ai/pai-lingo/internal/rules"
	"github.com/p-n-ai/pai-lingo/internal/store"
)

// CourseStatus summarizes a learner's standing in a course.
type CourseStatus string

const (
	CourseNotStarted CourseStatus = "not_started"
	CourseInProgress CourseStatus = "in_progress"
	CourseCompleted  CourseStatus = "completed"
)

// LessonStatus is the derived state of one lesson for a learner.
type LessonStatus struct {
	LessonID  int64  `json:"lesson_id"`
	Title     string `json:"title"`
	Unlocked  bool   `json:"unlocked"`
	Completed bool   `json:"completed"`
	BestScore int    `json:"best_score"`
}

// CourseCompletion is the learner's progress through one course.
type CourseCompletion struct {
	CourseID           int64          `json:"course_id"`
	Status             CourseStatus   `json:"status"`
	TotalLessons       int            `json:"total_lessons"`
	CompletedLessons   int            `json:"completed_lessons"`
	Percent            int            `json:"percent"`
	NextLessonID       *int64         `json:"next_lesson_id"`
	RemainingLessonIDs []int64        `json:"remaining_lesson_ids"`
	Lessons            []LessonStatus `json:"lessons"`
}

// lessonStates derives unlock and completion for lessons in course order.
// The first lesson is always open; later lessons open when their row is
// marked unlocked or the previous lesson is completed.
func lessonStates(lessons []content.Lesson, progress map[int64]store.LessonProgress) []LessonStatus {
	out := make([]LessonStatus, len(lessons))
	prevCompleted := true
	for i, l := range lessons {
		p := progress[l.ID]
		out[i] = LessonStatus{
			LessonID:  l.ID,
			Title:     l.Title,
			Unlocked:  i == 0 || p.IsUnlocked || prevCompleted,
			Completed: p.IsCompleted,
			BestScore: p.BestScore,
		}
		prevCompleted = p.IsCompleted
	}
	return out
}

func progressByLesson(rows []store.LessonProgress) map[int64]store.LessonProgress {
	m := make(map[int64]store.LessonProgress, len(rows))
	for _, p := range rows {
		m[p.LessonID] = p
	}
	return m
}

// CourseCompletion computes the learner's completion of a published course.
func (e *Engine) CourseCompletion(ctx context.Context, learnerID, courseID int64) (*CourseCompletion, error) {
	if err := checkLearner(learnerID); err != nil {
		return nil, err
	}
	if _, err := publishedCourse(ctx, e.store, courseID); err != nil {
		return nil, err
	}
	lessons, err := e.store.ListCourseLessons(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("loading course lessons: %w", err)
	}
	rows, err := e.store.ListLessonProgress(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("loading lesson progress: %w", err)
	}
	return completion(courseID, lessons, progressByLesson(rows)), nil
}

func completion(courseID int64, lessons []content.Lesson, progress map[int64]store.LessonProgress) *CourseCompletion {
	c := &CourseCompletion{
		CourseID:           courseID,
		TotalLessons:       len(lessons),
		RemainingLessonIDs: []int64{},
		Lessons:            lessonStates(lessons, progress),
	}

	started := false
	for _, st := range c.Lessons {
		if _, ok := progress[st.LessonID]; ok {
			started = true
		}
		if st.Completed {
			c.CompletedLessons++
			continue
		}
		c.RemainingLessonIDs = append(c.RemainingLessonIDs, st.LessonID)
		if c.NextLessonID == nil {
			id := st.LessonID
			c.NextLessonID = &id
		}
	}

	c.Percent = rules.Percent(c.CompletedLessons, c.TotalLessons)
	switch {
	case !started:
		c.Status = CourseNotStarted
	case c.CompletedLessons == c.TotalLessons:
		c.Status = CourseCompleted
	default:
		c.Status = CourseInProgress
	}
	return c
}

// StartCourse makes a published course the learner's single active course.
// StartedAt is set once; LastOpenedAt on every call.
func (e *Engine) StartCourse(ctx context.Context, learnerID, courseID int64) (store.UserCourse, error) {
	if err := checkLearner(learnerID); err != nil {
		return store.UserCourse{}, err
	}
	if _, err := publishedCourse(ctx, e.store, courseID); err != nil {
		return store.UserCourse{}, err
	}

	now := e.now()
	var uc store.UserCourse
	err := e.store.WithinTx(ctx, func(repo store.Repository) error {
		var err error
		uc, err = repo.GetUserCourse(ctx, learnerID, courseID)
		if errors.Is(err, store.ErrNotFound) {
			uc = store.UserCourse{LearnerID: learnerID, CourseID: courseID, StartedAt: now}
		} else if err != nil {
			return err
		}
		uc.IsActive = true
		uc.LastOpenedAt = now
		return repo.SaveUserCourse(ctx, uc)
	})
	if err != nil {
		return store.UserCourse{}, fmt.Errorf("starting course: %w", err)
	}
	return uc, nil
}

// SceneDetails is a published scene with the learner's unlock and
// completion state.
type SceneDetails struct {
	Scene          content.Scene `json:"scene"`
	Ordinal        int           `json:"ordinal"`
	RequiredPassed int           `json:"required_passed_lessons"`
	PassedLessons  int           `json:"passed_lessons"`
	Unlocked       bool          `json:"unlocked"`
	Completed      bool          `json:"completed"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	Steps          []StepView    `json:"steps,omitempty"`
}

// StepView is a scene step as shown to learners: choice texts are listed
// without marking the correct ones.
type StepView struct {
	content.SceneStep
	Options []string `json:"options,omitempty"`
}

func stepViews(steps []content.SceneStep) []StepView {
	out := make([]StepView, len(steps))
	for i, st := range steps {
		out[i] = StepView{SceneStep: st}
		if st.Type != content.StepChoice {
			continue
		}
		p, err := content.ParseStepPayload(st.Type, st.Payload)
		if err != nil {
			slog.Debug("choice step payload unreadable", "step_id", st.ID, "error", err)
			continue
		}
		cp, _ := p.(content.ChoicePayload)
		for _, c := range cp.Choices {
			out[i].Options = append(out[i].Options, c.Text)
		}
	}
	return out
}

// sceneView loads what scene state derivation needs.
type sceneView struct {
	scenes   []content.Scene // published, in ordinal order
	attempts map[int64]store.SceneAttempt
	passed   int
}

func (e *Engine) loadSceneView(ctx context.Context, learnerID int64) (*sceneView, error) {
	all, err := e.store.ListScenes(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading scenes: %w", err)
	}
	attempts, err := e.store.ListSceneAttempts(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("loading scene attempts: %w", err)
	}
	passed, err := e.passedLessons(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	v := &sceneView{attempts: make(map[int64]store.SceneAttempt, len(attempts)), passed: passed}
	for _, s := range all {
		if s.Published {
			v.scenes = append(v.scenes, s)
		}
	}
	for _, a := range attempts {
		v.attempts[a.SceneID] = a
	}
	return v, nil
}

func (v *sceneView) details(i int, unlockEvery int) SceneDetails {
	s := v.scenes[i]
	a := v.attempts[s.ID]
	ordinal := i + 1
	return SceneDetails{
		Scene:          s,
		Ordinal:        ordinal,
		RequiredPassed: rules.RequiredPassedLessons(ordinal, unlockEvery),
		PassedLessons:  v.passed,
		Unlocked:       rules.IsUnlocked(ordinal, v.passed, unlockEvery),
		Completed:      a.IsCompleted,
		CompletedAt:    a.CompletedAt,
	}
}

// passedLessons counts the distinct lessons the learner has passed.
func (e *Engine) passedLessons(ctx context.Context, learnerID int64) (int, error) {
	rows, err := e.store.ListLessonProgress(ctx, learnerID)
	if err != nil {
		return 0, fmt.Errorf("loading lesson progress: %w", err)
	}
	n := 0
	for _, p := range rows {
		if p.IsCompleted {
			n++
		}
	}
	return n, nil
}

// ListScenes returns every published scene with the learner's state.
func (e *Engine) ListScenes(ctx context.Context, learnerID int64) ([]SceneDetails, error) {
	if err := checkLearner(learnerID); err != nil {
		return nil, err
	}
	v, err := e.loadSceneView(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	out := make([]SceneDetails, len(v.scenes))
	for i := range v.scenes {
		out[i] = v.details(i, e.settings.SceneUnlockEveryLessons)
	}
	return out, nil
}

// SceneDetails returns one published scene with its steps and the learner's
// unlock and completion state. Unlock is recomputed from the current
// passed-lesson count on every call.
func (e *Engine) SceneDetails(ctx context.Context, learnerID, sceneID int64) (*SceneDetails, error) {
	if err := checkLearner(learnerID); err != nil {
		return nil, err
	}
	if _, err := publishedScene(ctx, e.store, sceneID); err != nil {
		return nil, err
	}
	v, err := e.loadSceneView(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	for i, s := range v.scenes {
		if s.ID != sceneID {
			continue
		}
		d := v.details(i, e.settings.SceneUnlockEveryLessons)
		steps, err := e.store.ListSceneSteps(ctx, sceneID)
		if err != nil {
			return nil, fmt.Errorf("loading scene steps: %w", err)
		}
		d.Steps = stepViews(steps)
		return &d, nil
	}
	return nil, &NotFoundError{Entity: "scene", ID: sceneID}
}

// DailyGoal is the learner's score against the daily target.
type DailyGoal struct {
	Date     string `json:"date"`
	Target   int    `json:"target"`
	Score    int    `json:"score"`
	Percent  int    `json:"percent"`
	Achieved bool   `json:"achieved"`
}

// DailyGoal sums today's passed-lesson scores and scene completions. Today
// is the UTC calendar day.
func (e *Engine) DailyGoal(ctx context.Context, learnerID int64) (*DailyGoal, error) {
	if err := checkLearner(learnerID); err != nil {
		return nil, err
	}
	now := e.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	today := func(t time.Time) bool {
		return !t.Before(start) && t.Before(end)
	}

	results, err := e.store.ListLessonResults(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("loading lesson results: %w", err)
	}
	attempts, err := e.store.ListSceneAttempts(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("loading scene attempts: %w", err)
	}

	score := 0
	for _, r := range results {
		if r.Passed && today(r.CompletedAt) {
			score += r.Score
		}
	}
	for _, a := range attempts {
		if a.IsCompleted && a.CompletedAt != nil && today(*a.CompletedAt) {
			score += e.settings.SceneCompletionScore
		}
	}

	target := e.settings.DailyGoalScore
	percent := 100
	if target > 0 {
		percent = min(rules.Percent(score, target), 100)
	}
	return &DailyGoal{
		Date:     start.Format(time.DateOnly),
		Target:   target,
		Score:    score,
		Percent:  percent,
		Achieved: score >= target,
	}, nil
}

// Mistakes lists the exercises (lesson) or steps (scene) the learner last
// answered wrong, ordered by id, with the time each was first missed.
func (e *Engine) Mistakes(ctx context.Context, learnerID int64, kind store.Kind) ([]store.Mistake, error) {
	if err := checkLearner(learnerID); err != nil {
		return nil, err
	}
	ms, err := e.store.ListMistakes(ctx, learnerID, kind)
	if err != nil {
		return nil, fmt.Errorf("loading mistakes: %w", err)
	}
	if ms == nil {
		ms = []store.Mistake{}
	}
	return ms, nil
}
