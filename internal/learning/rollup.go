package learning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/p-n-ai/pai-lingo/internal/store"
)

// FoldProgress computes the UserProgress projection from history. It is a
// pure function: the same rows always give the same rollup.
//
// TotalScore sums Score over passing lesson results. CompletedLessons and
// CompletedScenes count completed progress rows.
func FoldProgress(learnerID int64, lessons []store.LessonProgress, results []store.LessonResult, scenes []store.SceneAttempt, now time.Time) store.UserProgress {
	p := store.UserProgress{LearnerID: learnerID, LastUpdatedAt: now}
	for _, l := range lessons {
		if l.IsCompleted {
			p.CompletedLessons++
		}
	}
	for _, r := range results {
		if r.Passed {
			p.TotalScore += r.Score
		}
	}
	for _, s := range scenes {
		if s.IsCompleted {
			p.CompletedScenes++
		}
	}
	return p
}

// refreshProgress recomputes and stores the learner's rollup through repo.
// It locks the learner first so a concurrent transaction cannot overwrite
// the rollup with a fold that misses this one's rows.
func refreshProgress(ctx context.Context, repo store.Repository, learnerID int64, now time.Time) (store.UserProgress, error) {
	if err := repo.LockLearner(ctx, learnerID); err != nil {
		return store.UserProgress{}, err
	}
	lessons, err := repo.ListLessonProgress(ctx, learnerID)
	if err != nil {
		return store.UserProgress{}, fmt.Errorf("loading lesson progress: %w", err)
	}
	results, err := repo.ListLessonResults(ctx, learnerID)
	if err != nil {
		return store.UserProgress{}, fmt.Errorf("loading lesson results: %w", err)
	}
	scenes, err := repo.ListSceneAttempts(ctx, learnerID)
	if err != nil {
		return store.UserProgress{}, fmt.Errorf("loading scene attempts: %w", err)
	}

	p := FoldProgress(learnerID, lessons, results, scenes, now)
	if err := repo.SaveUserProgress(ctx, p); err != nil {
		return store.UserProgress{}, err
	}
	return p, nil
}

// RebuildProgress recomputes the learner's rollup from history.
func (e *Engine) RebuildProgress(ctx context.Context, learnerID int64) (store.UserProgress, error) {
	if err := checkLearner(learnerID); err != nil {
		return store.UserProgress{}, err
	}
	var p store.UserProgress
	err := e.store.WithinTx(ctx, func(repo store.Repository) error {
		var err error
		p, err = refreshProgress(ctx, repo, learnerID, e.now())
		return err
	})
	if err != nil {
		return store.UserProgress{}, fmt.Errorf("rebuilding progress: %w", err)
	}
	return p, nil
}

// Progress returns the stored rollup, or a zero rollup for a new learner.
func (e *Engine) Progress(ctx context.Context, learnerID int64) (store.UserProgress, error) {
	if err := checkLearner(learnerID); err != nil {
		return store.UserProgress{}, err
	}
	p, err := e.store.GetUserProgress(ctx, learnerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.UserProgress{LearnerID: learnerID}, nil
		}
		return p, fmt.Errorf("loading progress: %w", err)
	}
	return p, nil
}
