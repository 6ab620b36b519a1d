// Package store persists the course catalog and learner state behind a
// repository contract with in-memory and PostgreSQL implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/p-n-ai/pai-lingo/internal/content"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert collides with an existing
	// unique row, such as a replayed submission key.
	ErrDuplicate = errors.New("duplicate")
)

// dbTimeout bounds a single repository call when the caller's context has
// no deadline of its own.
const dbTimeout = 5 * time.Second

// ContentReader reads the catalog. Lists are ordered by (Order, ID).
type ContentReader interface {
	GetCourse(ctx context.Context, id int64) (content.Course, error)
	ListCourses(ctx context.Context) ([]content.Course, error)
	GetTopic(ctx context.Context, id int64) (content.Topic, error)
	ListTopics(ctx context.Context, courseID int64) ([]content.Topic, error)
	GetLesson(ctx context.Context, id int64) (content.Lesson, error)
	// ListCourseLessons returns the lessons of a course ordered by topic
	// order, then lesson order.
	ListCourseLessons(ctx context.Context, courseID int64) ([]content.Lesson, error)
	ListAllLessons(ctx context.Context) ([]content.Lesson, error)
	ListExercises(ctx context.Context, lessonID int64) ([]content.Exercise, error)
	GetScene(ctx context.Context, id int64) (content.Scene, error)
	ListScenes(ctx context.Context) ([]content.Scene, error)
	ListSceneSteps(ctx context.Context, sceneID int64) ([]content.SceneStep, error)
	GetVocabularyItem(ctx context.Context, id int64) (content.VocabularyItem, error)
	FindVocabularyItemByWord(ctx context.Context, word string) (content.VocabularyItem, error)
	ListVocabularyItems(ctx context.Context) ([]content.VocabularyItem, error)
	ListAchievements(ctx context.Context) ([]Achievement, error)
}

// ContentWriter seeds the catalog. Saves upsert by ID.
type ContentWriter interface {
	SaveCourse(ctx context.Context, c content.Course) error
	SaveTopic(ctx context.Context, t content.Topic) error
	SaveLesson(ctx context.Context, l content.Lesson) error
	SaveExercise(ctx context.Context, e content.Exercise) error
	SaveScene(ctx context.Context, s content.Scene) error
	SaveSceneStep(ctx context.Context, s content.SceneStep) error
	// SaveVocabularyItem upserts by case-insensitive word and returns the
	// stored item with its assigned ID.
	SaveVocabularyItem(ctx context.Context, v content.VocabularyItem) (content.VocabularyItem, error)
	SaveAchievement(ctx context.Context, a Achievement) error
}

// LearnerRepository holds per-learner state.
type LearnerRepository interface {
	GetLessonProgress(ctx context.Context, learnerID, lessonID int64) (LessonProgress, error)
	ListLessonProgress(ctx context.Context, learnerID int64) ([]LessonProgress, error)
	// SaveLessonProgress merges p into the stored row: BestScore only grows
	// and the unlocked/completed flags never clear.
	SaveLessonProgress(ctx context.Context, p LessonProgress) error
	AppendLessonResult(ctx context.Context, r LessonResult) (LessonResult, error)
	ListLessonResults(ctx context.Context, learnerID int64) ([]LessonResult, error)

	GetSceneAttempt(ctx context.Context, learnerID, sceneID int64) (SceneAttempt, error)
	ListSceneAttempts(ctx context.Context, learnerID int64) ([]SceneAttempt, error)
	// SaveSceneAttempt merges a into the stored row; completion is sticky
	// and keeps its first timestamp.
	SaveSceneAttempt(ctx context.Context, a SceneAttempt) error

	GetUserCourse(ctx context.Context, learnerID, courseID int64) (UserCourse, error)
	GetActiveCourse(ctx context.Context, learnerID int64) (UserCourse, error)
	// SaveUserCourse upserts uc. Saving an active row deactivates the
	// learner's other courses.
	SaveUserCourse(ctx context.Context, uc UserCourse) error

	GetSubmission(ctx context.Context, learnerID int64, kind Kind, targetID int64, key string) (Submission, error)
	// SaveSubmission inserts s and returns ErrDuplicate if the key is taken.
	SaveSubmission(ctx context.Context, s Submission) error

	// AddMistakes marks ids at the given time. Already marked ids keep
	// their first timestamp.
	AddMistakes(ctx context.Context, learnerID int64, kind Kind, at time.Time, ids ...int64) error
	ClearMistakes(ctx context.Context, learnerID int64, kind Kind, ids ...int64) error
	// ListMistakes returns the marked items ordered by id.
	ListMistakes(ctx context.Context, learnerID int64, kind Kind) ([]Mistake, error)

	GetUserVocabulary(ctx context.Context, learnerID, itemID int64) (UserVocabulary, error)
	SaveUserVocabulary(ctx context.Context, uv UserVocabulary) error
	// ListDueVocabulary returns items with NextReviewAt <= now, earliest first.
	ListDueVocabulary(ctx context.Context, learnerID int64, now time.Time) ([]UserVocabulary, error)

	// LockLearner serializes transactions that rewrite the learner's rollup.
	// The lock is held until the enclosing transaction ends; outside
	// WithinTx it has no lasting effect.
	LockLearner(ctx context.Context, learnerID int64) error
	GetUserProgress(ctx context.Context, learnerID int64) (UserProgress, error)
	SaveUserProgress(ctx context.Context, p UserProgress) error

	// GrantAchievement records an earned achievement and reports whether it
	// was newly inserted.
	GrantAchievement(ctx context.Context, ua UserAchievement) (bool, error)
	ListUserAchievements(ctx context.Context, learnerID int64) ([]UserAchievement, error)
}

// Repository is the full persistence contract.
type Repository interface {
	ContentReader
	ContentWriter
	LearnerRepository
}

// Store is a Repository that can run a unit of work atomically.
type Store interface {
	Repository
	// WithinTx runs fn against a transaction-scoped repository. Nothing fn
	// writes is visible unless it returns nil.
	WithinTx(ctx context.Context, fn func(Repository) error) error
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, dbTimeout)
}
