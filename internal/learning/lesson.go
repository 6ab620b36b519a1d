package learning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-lingo/internal/content"
	"github.com/p-n-ai/pai-lingo/internal/rules"
	"github.com/p-n-ai/pai-lingo/internal/store"
)

// LessonResult is the outcome of a lesson submission. Replays of the same
// idempotency key return the stored result unchanged.
type LessonResult struct {
	LessonID     int64          `json:"lesson_id"`
	CourseID     int64          `json:"course_id"`
	Score        int            `json:"score"`
	Total        int            `json:"total"`
	Percent      int            `json:"percent"`
	Passed       bool           `json:"passed"`
	BestScore    int            `json:"best_score"`
	Answers      []AnswerResult `json:"answers"`
	MistakeIDs   []int64        `json:"mistake_ids"`
	NextLessonID *int64         `json:"next_lesson_id,omitempty"`
	Achievements []string       `json:"achievements,omitempty"`
	SubmittedAt  time.Time      `json:"submitted_at"`

	// Replayed is set on responses served from a stored result.
	Replayed bool `json:"-"`
}

// gradeItem is one gradable exercise or step with its accepted answers.
type gradeItem struct {
	id       int64
	accepted []string
}

type grade struct {
	answers []AnswerResult
	correct []int64
	wrong   []int64
}

func (g grade) score() int { return len(g.correct) }
func (g grade) total() int { return len(g.answers) }

// gradeAnswers grades every item in order. Items without an answer count as
// wrong.
func gradeAnswers(items []gradeItem, answers []Answer) grade {
	byID := make(map[int64]string, len(answers))
	for _, a := range answers {
		byID[a.ID] = a.Text
	}

	g := grade{
		answers: make([]AnswerResult, 0, len(items)),
		correct: []int64{},
		wrong:   []int64{},
	}
	for _, it := range items {
		text, answered := byID[it.id]
		ok := answered && rules.MatchesAny(text, it.accepted...)
		g.answers = append(g.answers, AnswerResult{ID: it.id, Correct: ok})
		if ok {
			g.correct = append(g.correct, it.id)
		} else {
			g.wrong = append(g.wrong, it.id)
		}
	}
	return g
}

// SubmitLesson grades a lesson attempt and persists it atomically.
//
// Total is the number of exercises in the lesson, not the number of answers
// submitted: an exercise left unanswered is graded wrong and listed in
// MistakeIDs. A partial submission therefore cannot pass on the strength of
// the answers it did include.
//
// A keyed submission whose key was already used for this learner and lesson
// returns the stored result without grading again, even if the lesson has
// since been edited or unpublished. Reusing a key with a different answer
// set is a ConflictError.
func (e *Engine) SubmitLesson(ctx context.Context, sub Submission) (*LessonResult, error) {
	if err := sub.validate("lesson", false); err != nil {
		return nil, err
	}
	id := newIdempotency(store.KindLesson, sub)

	if raw, ok, err := e.priorResult(ctx, id); err != nil {
		return nil, err
	} else if ok {
		return decodeLessonResult(raw)
	}

	lesson, err := e.store.GetLesson(ctx, sub.TargetID)
	if err != nil {
		return nil, notFoundAs(err, "lesson", sub.TargetID)
	}
	course, err := lessonCourse(ctx, e.store, lesson)
	if err != nil {
		return nil, err
	}
	exercises, err := e.store.ListExercises(ctx, lesson.ID)
	if err != nil {
		return nil, fmt.Errorf("loading exercises: %w", err)
	}
	items := make([]gradeItem, 0, len(exercises))
	known := make(map[int64]bool, len(exercises))
	for _, ex := range exercises {
		items = append(items, gradeItem{id: ex.ID, accepted: []string{ex.CorrectAnswer}})
		known[ex.ID] = true
	}
	for _, a := range sub.Answers {
		if !known[a.ID] {
			return nil, &NotFoundError{Entity: "exercise", ID: a.ID}
		}
	}
	courseLessons, err := e.store.ListCourseLessons(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("loading course lessons: %w", err)
	}

	g := gradeAnswers(items, sub.Answers)
	passed := rules.IsPassed(g.score(), g.total(), e.settings.PassingPercent)
	now := e.now()

	res := LessonResult{
		LessonID:    lesson.ID,
		CourseID:    course.ID,
		Score:       g.score(),
		Total:       g.total(),
		Percent:     rules.Percent(g.score(), g.total()),
		Passed:      passed,
		Answers:     g.answers,
		MistakeIDs:  g.wrong,
		SubmittedAt: now,
	}
	if passed {
		if next, ok := lessonAfter(courseLessons, lesson.ID); ok {
			res.NextLessonID = &next.ID
		}
	}

	raw, replayed, err := e.persist(ctx, id, func(repo store.Repository) ([]byte, error) {
		return e.writeLesson(ctx, repo, id, sub.LearnerID, &res, g, now)
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		slog.Debug("lesson submission replayed", "learner_id", sub.LearnerID, "lesson_id", lesson.ID)
		return decodeLessonResult(raw)
	}

	slog.Info("lesson submitted",
		"learner_id", sub.LearnerID,
		"lesson_id", lesson.ID,
		"score", res.Score,
		"total", res.Total,
		"passed", res.Passed,
	)
	e.afterCommit(ctx, id, raw, ProgressEvent{
		Type:         EventLessonSubmitted,
		LearnerID:    sub.LearnerID,
		TargetID:     lesson.ID,
		Score:        res.Score,
		Total:        res.Total,
		Passed:       res.Passed,
		Completed:    res.Passed,
		Achievements: res.Achievements,
		At:           now,
	})
	return &res, nil
}

// writeLesson is the persisted part of a lesson submission. It runs inside
// the submission transaction.
func (e *Engine) writeLesson(ctx context.Context, repo store.Repository, id idempotency, learnerID int64, res *LessonResult, g grade, now time.Time) ([]byte, error) {
	if _, err := repo.AppendLessonResult(ctx, store.LessonResult{
		LearnerID:   learnerID,
		LessonID:    res.LessonID,
		Score:       res.Score,
		Total:       res.Total,
		Passed:      res.Passed,
		CompletedAt: now,
	}); err != nil {
		return nil, err
	}

	prev, err := repo.GetLessonProgress(ctx, learnerID, res.LessonID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err := repo.SaveLessonProgress(ctx, store.LessonProgress{
		LearnerID:     learnerID,
		LessonID:      res.LessonID,
		IsUnlocked:    true,
		IsCompleted:   res.Passed,
		BestScore:     res.Score,
		LastAttemptAt: &now,
	}); err != nil {
		return nil, err
	}
	res.BestScore = max(prev.BestScore, res.Score)

	if res.NextLessonID != nil {
		if err := repo.SaveLessonProgress(ctx, store.LessonProgress{
			LearnerID:  learnerID,
			LessonID:   *res.NextLessonID,
			IsUnlocked: true,
		}); err != nil {
			return nil, fmt.Errorf("unlocking next lesson: %w", err)
		}
	}

	if err := touchCourse(ctx, repo, learnerID, res.CourseID, res.LessonID, now); err != nil {
		return nil, err
	}
	if err := updateMistakes(ctx, repo, learnerID, store.KindLesson, g, now); err != nil {
		return nil, err
	}

	if res.Passed {
		earned, err := e.achievements.CheckAndGrantAchievements(ctx, repo, learnerID, res.Score, res.Total, now)
		if err != nil {
			return nil, err
		}
		res.Achievements = achievementCodes(earned)
		if _, err := refreshProgress(ctx, repo, learnerID, now); err != nil {
			return nil, err
		}
	}

	raw, err := encodeResult(res)
	if err != nil {
		return nil, err
	}
	if err := saveSubmission(ctx, repo, id, raw, now); err != nil {
		return nil, err
	}
	return raw, nil
}

// touchCourse records the lesson as the learner's resume point in its
// course, creating the course row on first use. A learner with no active
// course gets this one.
func touchCourse(ctx context.Context, repo store.Repository, learnerID, courseID, lessonID int64, now time.Time) error {
	uc, err := repo.GetUserCourse(ctx, learnerID, courseID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		_, activeErr := repo.GetActiveCourse(ctx, learnerID)
		if activeErr != nil && !errors.Is(activeErr, store.ErrNotFound) {
			return activeErr
		}
		uc = store.UserCourse{
			LearnerID: learnerID,
			CourseID:  courseID,
			IsActive:  errors.Is(activeErr, store.ErrNotFound),
			StartedAt: now,
		}
	case err != nil:
		return err
	}
	uc.LastOpenedAt = now
	uc.LastLessonID = &lessonID
	if err := repo.SaveUserCourse(ctx, uc); err != nil {
		return fmt.Errorf("updating course resume point: %w", err)
	}
	return nil
}

func updateMistakes(ctx context.Context, repo store.Repository, learnerID int64, kind store.Kind, g grade, now time.Time) error {
	if err := repo.AddMistakes(ctx, learnerID, kind, now, g.wrong...); err != nil {
		return err
	}
	return repo.ClearMistakes(ctx, learnerID, kind, g.correct...)
}

// lessonAfter returns the lesson following id in course order.
func lessonAfter(lessons []content.Lesson, id int64) (content.Lesson, bool) {
	for i, l := range lessons {
		if l.ID == id && i+1 < len(lessons) {
			return lessons[i+1], true
		}
	}
	return content.Lesson{}, false
}

func decodeLessonResult(raw []byte) (*LessonResult, error) {
	var res LessonResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decoding stored lesson result: %w", err)
	}
	res.Replayed = true
	return &res, nil
}
