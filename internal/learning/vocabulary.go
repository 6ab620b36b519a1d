package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-lingo/internal/content"
	"github.com/p-n-ai/pai-lingo/internal/srs"
	"github.com/p-n-ai/pai-lingo/internal/store"
)

// VocabularyCard is a personal vocabulary item with its catalog entry and
// scheduling state.
type VocabularyCard struct {
	Item           content.VocabularyItem `json:"item"`
	AddedAt        time.Time              `json:"added_at"`
	LastReviewedAt *time.Time             `json:"last_reviewed_at,omitempty"`
	NextReviewAt   time.Time              `json:"next_review_at"`
	Rung           int                    `json:"rung"`
}

func (e *Engine) card(item content.VocabularyItem, st srs.State) VocabularyCard {
	return VocabularyCard{
		Item:           item,
		AddedAt:        st.AddedAt,
		LastReviewedAt: st.LastReviewedAt,
		NextReviewAt:   st.NextReviewAt,
		Rung:           e.scheduler.Rung(st),
	}
}

// AddVocabulary binds a catalog item to the learner's deck. New items are
// due immediately. Adding an item twice returns the existing binding.
func (e *Engine) AddVocabulary(ctx context.Context, learnerID, itemID int64) (*VocabularyCard, error) {
	if err := checkLearner(learnerID); err != nil {
		return nil, err
	}
	if itemID <= 0 {
		return nil, invalid("item_id", "must be positive")
	}
	item, err := e.store.GetVocabularyItem(ctx, itemID)
	if err != nil {
		return nil, notFoundAs(err, "vocabulary item", itemID)
	}

	var uv store.UserVocabulary
	err = e.store.WithinTx(ctx, func(repo store.Repository) error {
		var err error
		uv, err = repo.GetUserVocabulary(ctx, learnerID, itemID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		uv = store.UserVocabulary{LearnerID: learnerID, ItemID: itemID, State: srs.NewState(e.now())}
		return repo.SaveUserVocabulary(ctx, uv)
	})
	if err != nil {
		return nil, fmt.Errorf("adding vocabulary: %w", err)
	}
	c := e.card(item, uv.State)
	return &c, nil
}

// ReviewVocabulary records a review outcome and reschedules the item.
func (e *Engine) ReviewVocabulary(ctx context.Context, learnerID, itemID int64, correct bool) (*VocabularyCard, error) {
	if err := checkLearner(learnerID); err != nil {
		return nil, err
	}
	if itemID <= 0 {
		return nil, invalid("item_id", "must be positive")
	}
	item, err := e.store.GetVocabularyItem(ctx, itemID)
	if err != nil {
		return nil, notFoundAs(err, "vocabulary item", itemID)
	}

	now := e.now()
	var uv store.UserVocabulary
	err = e.store.WithinTx(ctx, func(repo store.Repository) error {
		var err error
		uv, err = repo.GetUserVocabulary(ctx, learnerID, itemID)
		if err != nil {
			return notFoundAs(err, "vocabulary item", itemID)
		}
		uv.State = e.scheduler.Review(uv.State, correct, now)
		return repo.SaveUserVocabulary(ctx, uv)
	})
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nil, nf
	}
	if err != nil {
		return nil, fmt.Errorf("reviewing vocabulary: %w", err)
	}

	slog.Debug("vocabulary reviewed",
		"learner_id", learnerID,
		"item_id", itemID,
		"correct", correct,
		"next_review_at", uv.NextReviewAt,
	)
	c := e.card(item, uv.State)
	return &c, nil
}

// DueVocabulary lists the learner's items due now, earliest first.
func (e *Engine) DueVocabulary(ctx context.Context, learnerID int64) ([]VocabularyCard, error) {
	if err := checkLearner(learnerID); err != nil {
		return nil, err
	}
	due, err := e.store.ListDueVocabulary(ctx, learnerID, e.now())
	if err != nil {
		return nil, fmt.Errorf("loading due vocabulary: %w", err)
	}
	out := make([]VocabularyCard, 0, len(due))
	for _, uv := range due {
		item, err := e.store.GetVocabularyItem(ctx, uv.ItemID)
		if err != nil {
			return nil, fmt.Errorf("loading vocabulary item %d: %w", uv.ItemID, err)
		}
		out = append(out, e.card(item, uv.State))
	}
	return out, nil
}
