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

// SceneResult is the outcome of a scene submission.
type SceneResult struct {
	SceneID      int64          `json:"scene_id"`
	Score        int            `json:"score"`
	Total        int            `json:"total"`
	Percent      int            `json:"percent"`
	Passed       bool           `json:"passed"`
	Completed    bool           `json:"completed"`
	Answers      []AnswerResult `json:"answers"`
	MistakeIDs   []int64        `json:"mistake_ids"`
	Achievements []string       `json:"achievements,omitempty"`
	SubmittedAt  time.Time      `json:"submitted_at"`

	// Replayed is set on responses served from a stored result.
	Replayed bool `json:"-"`
}

// SubmitScene grades a scene attempt against its choice and input steps and
// persists it atomically. It mirrors SubmitLesson with step ids in place of
// exercise ids. A scene made only of narration is completed by an empty
// submission.
func (e *Engine) SubmitScene(ctx context.Context, sub Submission) (*SceneResult, error) {
	if err := sub.validate("scene", true); err != nil {
		return nil, err
	}
	id := newIdempotency(store.KindScene, sub)

	if raw, ok, err := e.priorResult(ctx, id); err != nil {
		return nil, err
	} else if ok {
		return decodeSceneResult(raw)
	}

	scene, err := publishedScene(ctx, e.store, sub.TargetID)
	if err != nil {
		return nil, err
	}
	items, err := e.sceneItems(ctx, scene.ID, sub.Answers)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 && len(sub.Answers) == 0 {
		return nil, invalid("answers", "must not be empty")
	}

	g := gradeAnswers(items, sub.Answers)
	passed := g.total() == 0 || rules.IsPassed(g.score(), g.total(), e.settings.ScenePassingPercent)
	now := e.now()

	res := SceneResult{
		SceneID:     scene.ID,
		Score:       g.score(),
		Total:       g.total(),
		Percent:     rules.Percent(g.score(), g.total()),
		Passed:      passed,
		Answers:     g.answers,
		MistakeIDs:  g.wrong,
		SubmittedAt: now,
	}

	raw, replayed, err := e.persist(ctx, id, func(repo store.Repository) ([]byte, error) {
		return e.writeScene(ctx, repo, id, sub.LearnerID, &res, g, now)
	})
	if err != nil {
		return nil, err
	}
	if replayed {
		slog.Debug("scene submission replayed", "learner_id", sub.LearnerID, "scene_id", scene.ID)
		return decodeSceneResult(raw)
	}

	slog.Info("scene submitted",
		"learner_id", sub.LearnerID,
		"scene_id", scene.ID,
		"score", res.Score,
		"total", res.Total,
		"passed", res.Passed,
	)
	e.afterCommit(ctx, id, raw, ProgressEvent{
		Type:         EventSceneSubmitted,
		LearnerID:    sub.LearnerID,
		TargetID:     scene.ID,
		Score:        res.Score,
		Total:        res.Total,
		Passed:       res.Passed,
		Completed:    res.Completed,
		Achievements: res.Achievements,
		At:           now,
	})
	return &res, nil
}

// sceneItems returns the gradable steps of a scene and checks that every
// answer targets one of them.
func (e *Engine) sceneItems(ctx context.Context, sceneID int64, answers []Answer) ([]gradeItem, error) {
	steps, err := e.store.ListSceneSteps(ctx, sceneID)
	if err != nil {
		return nil, fmt.Errorf("loading scene steps: %w", err)
	}

	var items []gradeItem
	byID := make(map[int64]content.SceneStep, len(steps))
	for _, st := range steps {
		byID[st.ID] = st
		if !st.Gradable() {
			continue
		}
		p, err := content.ParseStepPayload(st.Type, st.Payload)
		if err != nil {
			return nil, fmt.Errorf("scene %d step %d: %w", sceneID, st.ID, err)
		}
		items = append(items, gradeItem{id: st.ID, accepted: p.Accepted()})
	}

	for i, a := range answers {
		st, ok := byID[a.ID]
		if !ok {
			return nil, &NotFoundError{Entity: "scene step", ID: a.ID}
		}
		if !st.Gradable() {
			return nil, invalid(fmt.Sprintf("answers[%d].id", i), "step %d takes no answer", a.ID)
		}
	}
	return items, nil
}

func (e *Engine) writeScene(ctx context.Context, repo store.Repository, id idempotency, learnerID int64, res *SceneResult, g grade, now time.Time) ([]byte, error) {
	prev, err := repo.GetSceneAttempt(ctx, learnerID, res.SceneID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	attempt := store.SceneAttempt{
		LearnerID:     learnerID,
		SceneID:       res.SceneID,
		IsCompleted:   res.Passed,
		LastAttemptAt: now,
	}
	if res.Passed {
		attempt.CompletedAt = &now
	}
	if err := repo.SaveSceneAttempt(ctx, attempt); err != nil {
		return nil, err
	}
	res.Completed = prev.IsCompleted || res.Passed

	if err := updateMistakes(ctx, repo, learnerID, store.KindScene, g, now); err != nil {
		return nil, err
	}

	if res.Passed {
		earned, err := e.achievements.CheckAndGrantSceneAchievements(ctx, repo, learnerID, now)
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

func decodeSceneResult(raw []byte) (*SceneResult, error) {
	var res SceneResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decoding stored scene result: %w", err)
	}
	res.Replayed = true
	return &res, nil
}
