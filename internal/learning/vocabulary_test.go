package learning_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-n-ai/pai-lingo/internal/learning"
)

func TestAddVocabulary(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	id := f.vocabID(t)

	card, err := f.engine.AddVocabulary(ctx, learner, id)
	require.NoError(t, err)
	assert.Equal(t, "gato", card.Item.Word)
	assert.Equal(t, start, card.NextReviewAt, "new items are due immediately")
	assert.Equal(t, -1, card.Rung)

	f.clock.Advance(time.Hour)
	again, err := f.engine.AddVocabulary(ctx, learner, id)
	require.NoError(t, err)
	assert.Equal(t, start, again.AddedAt, "adding twice keeps the binding")

	_, err = f.engine.AddVocabulary(ctx, learner, 9999)
	var nf *learning.NotFoundError
	require.ErrorAs(t, err, &nf)

	_, err = f.engine.AddVocabulary(ctx, learner, 0)
	var ve *learning.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestReviewVocabulary_Ladder(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	id := f.vocabID(t)
	_, err := f.engine.AddVocabulary(ctx, learner, id)
	require.NoError(t, err)

	for i, days := range []int{1, 2, 4, 7, 14, 30, 60, 60} {
		card, err := f.engine.ReviewVocabulary(ctx, learner, id, true)
		require.NoError(t, err)
		want := f.clock.Now().Add(time.Duration(days) * 24 * time.Hour)
		assert.Equal(t, want, card.NextReviewAt, "review %d", i+1)
		f.clock.Advance(time.Duration(days) * 24 * time.Hour)
	}

	card, err := f.engine.ReviewVocabulary(ctx, learner, id, false)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(12*time.Hour), card.NextReviewAt)
	assert.Equal(t, -1, card.Rung)

	f.clock.Advance(12 * time.Hour)
	card, err = f.engine.ReviewVocabulary(ctx, learner, id, true)
	require.NoError(t, err)
	assert.Equal(t, 0, card.Rung, "a correct answer after a miss restarts at the first rung")
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), card.NextReviewAt)
}

func TestReviewVocabulary_NotInDeck(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.ReviewVocabulary(t.Context(), learner, f.vocabID(t), true)
	var nf *learning.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestDueVocabulary(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	id := f.vocabID(t)

	due, err := f.engine.DueVocabulary(ctx, learner)
	require.NoError(t, err)
	assert.Empty(t, due)

	_, err = f.engine.AddVocabulary(ctx, learner, id)
	require.NoError(t, err)
	due, err = f.engine.DueVocabulary(ctx, learner)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "cat", due[0].Item.Translation)

	_, err = f.engine.ReviewVocabulary(ctx, learner, id, false)
	require.NoError(t, err)
	due, err = f.engine.DueVocabulary(ctx, learner)
	require.NoError(t, err)
	assert.Empty(t, due)

	f.clock.Advance(12 * time.Hour)
	due, err = f.engine.DueVocabulary(ctx, learner)
	require.NoError(t, err)
	assert.Len(t, due, 1, "due exactly at NextReviewAt")
}
