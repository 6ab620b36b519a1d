package store

import (
	"fmt"
	"time"

	"github.com/p-n-ai/pai-lingo/internal/content"
	"github.com/p-n-ai/pai-lingo/internal/srs"
)

// Kind separates lesson and scene rows that share a table.
type Kind string

const (
	KindLesson Kind = "lesson"
	KindScene  Kind = "scene"
)

// ParseKind maps a stored or requested string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindLesson, KindScene:
		return k, nil
	}
	return "", fmt.Errorf("kind %q: %w", s, content.ErrUnrecognized)
}

// LessonProgress is a learner's best-score record for one lesson.
type LessonProgress struct {
	LearnerID     int64      `json:"learner_id"`
	LessonID      int64      `json:"lesson_id"`
	IsUnlocked    bool       `json:"is_unlocked"`
	IsCompleted   bool       `json:"is_completed"`
	BestScore     int        `json:"best_score"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// merge folds next into p without ever lowering the score or clearing a flag.
func (p LessonProgress) merge(next LessonProgress) LessonProgress {
	p.IsUnlocked = p.IsUnlocked || next.IsUnlocked
	p.IsCompleted = p.IsCompleted || next.IsCompleted
	p.BestScore = max(p.BestScore, next.BestScore)
	if next.LastAttemptAt != nil && (p.LastAttemptAt == nil || next.LastAttemptAt.After(*p.LastAttemptAt)) {
		p.LastAttemptAt = next.LastAttemptAt
	}
	return p
}

// LessonResult is one append-only graded lesson attempt.
type LessonResult struct {
	ID          int64     `json:"id"`
	LearnerID   int64     `json:"learner_id"`
	LessonID    int64     `json:"lesson_id"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	Passed      bool      `json:"passed"`
	CompletedAt time.Time `json:"completed_at"`
}

// SceneAttempt is a learner's completion record for one scene.
type SceneAttempt struct {
	LearnerID     int64      `json:"learner_id"`
	SceneID       int64      `json:"scene_id"`
	IsCompleted   bool       `json:"is_completed"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastAttemptAt time.Time  `json:"last_attempt_at"`
}

func (a SceneAttempt) merge(next SceneAttempt) SceneAttempt {
	if next.IsCompleted && !a.IsCompleted {
		a.IsCompleted = true
		a.CompletedAt = next.CompletedAt
	}
	if next.LastAttemptAt.After(a.LastAttemptAt) {
		a.LastAttemptAt = next.LastAttemptAt
	}
	return a
}

// UserCourse tracks a learner's activity in one course.
type UserCourse struct {
	LearnerID    int64     `json:"learner_id"`
	CourseID     int64     `json:"course_id"`
	IsActive     bool      `json:"is_active"`
	StartedAt    time.Time `json:"started_at"`
	LastOpenedAt time.Time `json:"last_opened_at"`
	LastLessonID *int64    `json:"last_lesson_id,omitempty"`
}

// UserVocabulary binds a catalog item to a learner with its review schedule.
type UserVocabulary struct {
	LearnerID int64 `json:"learner_id"`
	ItemID    int64 `json:"item_id"`
	srs.State
}

// UserProgress is the rollup projection of a learner's history.
type UserProgress struct {
	LearnerID        int64     `json:"learner_id"`
	CompletedLessons int       `json:"completed_lessons"`
	CompletedScenes  int       `json:"completed_scenes"`
	TotalScore       int       `json:"total_score"`
	LastUpdatedAt    time.Time `json:"last_updated_at"`
}

// AchievementKind selects the rule that earns an achievement.
type AchievementKind string

const (
	AchievementLessonsCompleted AchievementKind = "lessons_completed"
	AchievementPerfectScore     AchievementKind = "perfect_score"
	AchievementScenesCompleted  AchievementKind = "scenes_completed"
)

// Achievement is a catalog entry.
type Achievement struct {
	ID        int64           `json:"id"`
	Code      string          `json:"code"`
	Title     string          `json:"title"`
	Kind      AchievementKind `json:"kind"`
	Threshold int             `json:"threshold"`
}

// Mistake is an exercise (lesson) or step (scene) the learner last answered
// wrong, with the time it was first marked.
type Mistake struct {
	ItemID   int64     `json:"item_id"`
	MarkedAt time.Time `json:"marked_at"`
}

// UserAchievement records an earned achievement.
type UserAchievement struct {
	LearnerID     int64     `json:"learner_id"`
	AchievementID int64     `json:"achievement_id"`
	EarnedAt      time.Time `json:"earned_at"`
}

// Submission is the stored outcome of an idempotent submission.
type Submission struct {
	LearnerID   int64     `json:"learner_id"`
	Kind        Kind      `json:"kind"`
	TargetID    int64     `json:"target_id"`
	Key         string    `json:"key"`
	Fingerprint []byte    `json:"fingerprint"`
	Result      []byte    `json:"result"`
	CreatedAt   time.Time `json:"created_at"`
}
