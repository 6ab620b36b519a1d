package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/p-n-ai/pai-lingo/internal/store"
)

// AchievementTrigger grants achievements after a passing submission. It runs
// inside the submission transaction against the transaction's repository,
// so a rolled-back or replayed submission grants nothing.
type AchievementTrigger interface {
	CheckAndGrantAchievements(ctx context.Context, repo store.Repository, learnerID int64, score, total int, now time.Time) ([]store.Achievement, error)
	CheckAndGrantSceneAchievements(ctx context.Context, repo store.Repository, learnerID int64, now time.Time) ([]store.Achievement, error)
}

// DefaultAchievements is the stock catalog seeded by learnctl.
func DefaultAchievements() []store.Achievement {
	return []store.Achievement{
		{ID: 1, Code: "first-lesson", Title: "First lesson passed", Kind: store.AchievementLessonsCompleted, Threshold: 1},
		{ID: 2, Code: "ten-lessons", Title: "Ten lessons passed", Kind: store.AchievementLessonsCompleted, Threshold: 10},
		{ID: 3, Code: "perfect-score", Title: "Perfect lesson", Kind: store.AchievementPerfectScore},
		{ID: 4, Code: "first-scene", Title: "First scene completed", Kind: store.AchievementScenesCompleted, Threshold: 1},
		{ID: 5, Code: "five-scenes", Title: "Five scenes completed", Kind: store.AchievementScenesCompleted, Threshold: 5},
	}
}

// Granter evaluates the achievement catalog against learner state.
type Granter struct{}

// CheckAndGrantAchievements grants lesson-count and perfect-score
// achievements and returns the ones newly earned.
func (Granter) CheckAndGrantAchievements(ctx context.Context, repo store.Repository, learnerID int64, score, total int, now time.Time) ([]store.Achievement, error) {
	progress, err := repo.ListLessonProgress(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("loading lesson progress: %w", err)
	}
	completed := 0
	for _, p := range progress {
		if p.IsCompleted {
			completed++
		}
	}

	return grant(ctx, repo, learnerID, now, func(a store.Achievement) bool {
		switch a.Kind {
		case store.AchievementLessonsCompleted:
			return completed >= a.Threshold
		case store.AchievementPerfectScore:
			return total > 0 && score == total
		}
		return false
	})
}

// CheckAndGrantSceneAchievements grants scene-count achievements.
func (Granter) CheckAndGrantSceneAchievements(ctx context.Context, repo store.Repository, learnerID int64, now time.Time) ([]store.Achievement, error) {
	attempts, err := repo.ListSceneAttempts(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("loading scene attempts: %w", err)
	}
	completed := 0
	for _, a := range attempts {
		if a.IsCompleted {
			completed++
		}
	}

	return grant(ctx, repo, learnerID, now, func(a store.Achievement) bool {
		return a.Kind == store.AchievementScenesCompleted && completed >= a.Threshold
	})
}

func grant(ctx context.Context, repo store.Repository, learnerID int64, now time.Time, earned func(store.Achievement) bool) ([]store.Achievement, error) {
	catalog, err := repo.ListAchievements(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading achievements: %w", err)
	}

	var granted []store.Achievement
	for _, a := range catalog {
		if !earned(a) {
			continue
		}
		inserted, err := repo.GrantAchievement(ctx, store.UserAchievement{
			LearnerID:     learnerID,
			AchievementID: a.ID,
			EarnedAt:      now,
		})
		if err != nil {
			return nil, fmt.Errorf("granting %s: %w", a.Code, err)
		}
		if inserted {
			granted = append(granted, a)
		}
	}
	return granted, nil
}

func achievementCodes(as []store.Achievement) []string {
	if len(as) == 0 {
		return nil
	}
	codes := make([]string, len(as))
	for i, a := range as {
		codes[i] = a.Code
	}
	return codes
}
