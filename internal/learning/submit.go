package learning

import (
	"bytes"
	"cmp"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/p-n-ai/pai-lingo/internal/rules"
	"github.com/p-n-ai/pai-lingo/internal/store"
)

// Answer is a learner's response to one exercise or scene step.
type Answer struct {
	ID   int64  `json:"id"`
	Text string `json:"answer"`
}

// AnswerResult is the grade of one exercise or step.
type AnswerResult struct {
	ID      int64 `json:"id"`
	Correct bool  `json:"correct"`
}

// Submission is a graded attempt at a lesson or scene.
type Submission struct {
	LearnerID      int64
	TargetID       int64 // lesson or scene
	Answers        []Answer
	IdempotencyKey string
}

// validate checks the request shape. allowEmpty permits an empty answer list.
func (s Submission) validate(target string, allowEmpty bool) error {
	if err := checkLearner(s.LearnerID); err != nil {
		return err
	}
	if s.TargetID <= 0 {
		return invalid(target+"_id", "must be positive")
	}
	if len(s.IdempotencyKey) > MaxIdempotencyKeyLen {
		return invalid("idempotency_key", "longer than %d bytes", MaxIdempotencyKeyLen)
	}
	if len(s.Answers) == 0 && !allowEmpty {
		return invalid("answers", "must not be empty")
	}
	return s.validateAnswers()
}

func (s Submission) validateAnswers() error {
	seen := make(map[int64]bool, len(s.Answers))
	for i, a := range s.Answers {
		if a.ID <= 0 {
			return invalid(fmt.Sprintf("answers[%d].id", i), "must be positive")
		}
		if strings.TrimSpace(a.Text) == "" {
			return invalid(fmt.Sprintf("answers[%d].answer", i), "must not be blank")
		}
		if seen[a.ID] {
			return invalid(fmt.Sprintf("answers[%d].id", i), "duplicate id %d", a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// fingerprint hashes the normalized answer set, independent of answer order.
func fingerprint(answers []Answer) []byte {
	sorted := slices.SortedFunc(slices.Values(answers), func(a, b Answer) int {
		return cmp.Compare(a.ID, b.ID)
	})
	var buf bytes.Buffer
	for _, a := range sorted {
		norm := rules.NormalizeAnswer(a.Text)
		_ = binary.Write(&buf, binary.BigEndian, a.ID)
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(norm)))
		buf.WriteString(norm)
	}
	sum := blake2b.Sum256(buf.Bytes())
	return sum[:]
}

// idempotency identifies the stored result a keyed submission maps to.
type idempotency struct {
	kind        store.Kind
	learnerID   int64
	targetID    int64
	key         string
	fingerprint []byte
}

func newIdempotency(kind store.Kind, s Submission) idempotency {
	return idempotency{
		kind:        kind,
		learnerID:   s.LearnerID,
		targetID:    s.TargetID,
		key:         s.IdempotencyKey,
		fingerprint: fingerprint(s.Answers),
	}
}

func (id idempotency) keyed() bool { return id.key != "" }

func (id idempotency) check(stored store.Submission) error {
	if !bytes.Equal(stored.Fingerprint, id.fingerprint) {
		return &ConflictError{Key: id.key}
	}
	return nil
}

// cachedResult consults the replay cache. Cache failures only cost the
// fast path.
func (e *Engine) cachedResult(ctx context.Context, id idempotency) ([]byte, bool, error) {
	if !id.keyed() {
		return nil, false, nil
	}
	s, ok, err := e.results.Get(ctx, id.learnerID, id.kind, id.targetID, id.key)
	if err != nil {
		slog.Warn("result cache read failed", "kind", id.kind, "learner_id", id.learnerID, "error", err)
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	if err := id.check(s); err != nil {
		return nil, false, err
	}
	return s.Result, true, nil
}

// priorResult returns the result already recorded for the key, from the
// replay cache or the store. It runs before any content lookup so a replay
// still answers after the lesson or scene changed.
func (e *Engine) priorResult(ctx context.Context, id idempotency) ([]byte, bool, error) {
	raw, ok, err := e.cachedResult(ctx, id)
	if err != nil || ok {
		return raw, ok, err
	}
	return storedResult(ctx, e.store, id)
}

// storedResult reads a prior result for the key through repo.
func storedResult(ctx context.Context, repo store.Repository, id idempotency) ([]byte, bool, error) {
	if !id.keyed() {
		return nil, false, nil
	}
	s, err := repo.GetSubmission(ctx, id.learnerID, id.kind, id.targetID, id.key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading submission: %w", err)
	}
	if err := id.check(s); err != nil {
		return nil, false, err
	}
	return s.Result, true, nil
}

// encodeResult marshals v and decodes it back into v, so a first response
// and every replay are built from the same bytes.
func encodeResult(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	return raw, nil
}

func saveSubmission(ctx context.Context, repo store.Repository, id idempotency, raw []byte, now time.Time) error {
	if !id.keyed() {
		return nil
	}
	return repo.SaveSubmission(ctx, store.Submission{
		LearnerID:   id.learnerID,
		Kind:        id.kind,
		TargetID:    id.targetID,
		Key:         id.key,
		Fingerprint: id.fingerprint,
		Result:      raw,
		CreatedAt:   now,
	})
}

// persist runs write in a transaction unless a stored result already
// exists for the key. It returns the result bytes and whether they were
// replayed. A racing transaction that stored the key first turns this call
// into a replay of its result.
func (e *Engine) persist(ctx context.Context, id idempotency, write func(repo store.Repository) ([]byte, error)) ([]byte, bool, error) {
	var (
		raw      []byte
		replayed bool
	)
	err := e.store.WithinTx(ctx, func(repo store.Repository) error {
		prior, found, err := storedResult(ctx, repo, id)
		if err != nil {
			return err
		}
		if found {
			raw, replayed = prior, true
			return nil
		}
		raw, err = write(repo)
		return err
	})
	if errors.Is(err, store.ErrDuplicate) {
		prior, found, lerr := storedResult(ctx, e.store, id)
		if lerr != nil {
			return nil, false, lerr
		}
		if !found {
			return nil, false, fmt.Errorf("submission %q vanished after conflict: %w", id.key, err)
		}
		return prior, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, replayed, nil
}

// afterCommit fills the replay cache and publishes the event. Both are
// best-effort.
func (e *Engine) afterCommit(ctx context.Context, id idempotency, raw []byte, ev ProgressEvent) {
	if id.keyed() {
		err := e.results.Put(ctx, store.Submission{
			LearnerID:   id.learnerID,
			Kind:        id.kind,
			TargetID:    id.targetID,
			Key:         id.key,
			Fingerprint: id.fingerprint,
			Result:      raw,
			CreatedAt:   ev.At,
		})
		if err != nil {
			slog.Warn("result cache write failed", "kind", id.kind, "learner_id", id.learnerID, "error", err)
		}
	}

	ev.ID = uuid.NewString()
	if err := e.publisher.Publish(ctx, ev); err != nil {
		slog.Warn("publishing progress event failed", "type", ev.Type, "learner_id", ev.LearnerID, "error", err)
	}
}
