package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-lingo/internal/content"
	"github.com/p-n-ai/pai-lingo/internal/srs"
	"github.com/p-n-ai/pai-lingo/internal/store"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func seedCatalog(t *testing.T, s store.Store) {
	t.Helper()
	ctx := t.Context()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(s.SaveCourse(ctx, content.Course{ID: 1, Title: "Spanish A1", Language: "es", Published: true}))
	must(s.SaveTopic(ctx, content.Topic{ID: 20, CourseID: 1, Title: "Food", Order: 2}))
	must(s.SaveTopic(ctx, content.Topic{ID: 10, CourseID: 1, Title: "Greetings", Order: 1}))
	must(s.SaveLesson(ctx, content.Lesson{ID: 201, TopicID: 20, Title: "Ordering", Order: 1}))
	must(s.SaveLesson(ctx, content.Lesson{ID: 102, TopicID: 10, Title: "Goodbye", Order: 2}))
	must(s.SaveLesson(ctx, content.Lesson{ID: 101, TopicID: 10, Title: "Hello", Order: 1, Theory: "hola, buenos días"}))
	must(s.SaveExercise(ctx, content.Exercise{ID: 1002, LessonID: 101, Type: content.ExerciseTranslation, Prompt: "Good morning", CorrectAnswer: "buenos días", Order: 2}))
	must(s.SaveExercise(ctx, content.Exercise{ID: 1001, LessonID: 101, Type: content.ExerciseTranslation, Prompt: "Hello", CorrectAnswer: "hola", Order: 1}))
	must(s.SaveScene(ctx, content.Scene{ID: 7, Title: "Café", Type: content.SceneDialogue, Order: 1, Published: true}))
	must(s.SaveSceneStep(ctx, content.SceneStep{ID: 71, SceneID: 7, Order: 1, Speaker: "Waiter", Text: "¿Qué desea?", Type: content.StepNarration}))
	must(s.SaveSceneStep(ctx, content.SceneStep{ID: 72, SceneID: 7, Order: 2, Speaker: "You", Type: content.StepInput,
		Payload: json.RawMessage(`{"correctAnswer": "un café"}`)}))
	must(s.SaveAchievement(ctx, store.Achievement{ID: 1, Code: "first-lesson", Title: "First steps", Kind: store.AchievementLessonsCompleted, Threshold: 1}))
}

// runContract exercises the Repository contract against any Store.
func runContract(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("catalog ordering", func(t *testing.T) {
		s := newStore(t)
		seedCatalog(t, s)
		ctx := t.Context()

		lessons, err := s.ListCourseLessons(ctx, 1)
		if err != nil {
			t.Fatalf("ListCourseLessons() error = %v", err)
		}
		var ids []int64
		for _, l := range lessons {
			ids = append(ids, l.ID)
		}
		if want := []int64{101, 102, 201}; !slices.Equal(ids, want) {
			t.Errorf("lesson order = %v, want %v", ids, want)
		}

		ex, err := s.ListExercises(ctx, 101)
		if err != nil || len(ex) != 2 || ex[0].ID != 1001 {
			t.Errorf("ListExercises() = %v, %v", ex, err)
		}
		if ex[0].CorrectAnswer != "hola" || ex[0].Type != content.ExerciseTranslation {
			t.Errorf("exercise round trip = %+v", ex[0])
		}

		steps, err := s.ListSceneSteps(ctx, 7)
		if err != nil || len(steps) != 2 {
			t.Fatalf("ListSceneSteps() = %v, %v", steps, err)
		}
		p, err := content.ParseStepPayload(steps[1].Type, steps[1].Payload)
		if err != nil {
			t.Fatalf("stored payload does not parse: %v", err)
		}
		if got := p.Accepted(); !slices.Equal(got, []string{"un café"}) {
			t.Errorf("Accepted() = %v", got)
		}

		if _, err := s.GetLesson(ctx, 999); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetLesson(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("lesson progress is monotonic", func(t *testing.T) {
		s := newStore(t)
		seedCatalog(t, s)
		ctx := t.Context()

		t1, t2 := base, base.Add(time.Hour)
		saves := []store.LessonProgress{
			{LearnerID: 5, LessonID: 101, IsCompleted: true, BestScore: 2, LastAttemptAt: &t1},
			{LearnerID: 5, LessonID: 101, IsCompleted: false, BestScore: 1, LastAttemptAt: &t2},
		}
		for _, p := range saves {
			if err := s.SaveLessonProgress(ctx, p); err != nil {
				t.Fatalf("SaveLessonProgress() error = %v", err)
			}
		}

		got, err := s.GetLessonProgress(ctx, 5, 101)
		if err != nil {
			t.Fatalf("GetLessonProgress() error = %v", err)
		}
		if got.BestScore != 2 || !got.IsCompleted {
			t.Errorf("progress = %+v, want best 2 and completed", got)
		}
		if got.LastAttemptAt == nil || !got.LastAttemptAt.Equal(t2) {
			t.Errorf("LastAttemptAt = %v, want %v", got.LastAttemptAt, t2)
		}
	})

	t.Run("scene completion is sticky", func(t *testing.T) {
		s := newStore(t)
		seedCatalog(t, s)
		ctx := t.Context()

		done := base
		_ = s.SaveSceneAttempt(ctx, store.SceneAttempt{LearnerID: 5, SceneID: 7, IsCompleted: true, CompletedAt: &done, LastAttemptAt: base})
		_ = s.SaveSceneAttempt(ctx, store.SceneAttempt{LearnerID: 5, SceneID: 7, LastAttemptAt: base.Add(time.Hour)})

		got, err := s.GetSceneAttempt(ctx, 5, 7)
		if err != nil {
			t.Fatalf("GetSceneAttempt() error = %v", err)
		}
		if !got.IsCompleted || got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
			t.Errorf("attempt = %+v, want completion kept at %v", got, done)
		}
	})

	t.Run("single active course", func(t *testing.T) {
		s := newStore(t)
		seedCatalog(t, s)
		ctx := t.Context()
		if err := s.SaveCourse(ctx, content.Course{ID: 2, Title: "French A1", Language: "fr", Published: true}); err != nil {
			t.Fatal(err)
		}

		for _, id := range []int64{1, 2} {
			uc := store.UserCourse{LearnerID: 5, CourseID: id, IsActive: true, StartedAt: base, LastOpenedAt: base}
			if err := s.SaveUserCourse(ctx, uc); err != nil {
				t.Fatalf("SaveUserCourse(%d) error = %v", id, err)
			}
		}

		active, err := s.GetActiveCourse(ctx, 5)
		if err != nil || active.CourseID != 2 {
			t.Errorf("GetActiveCourse() = %+v, %v, want course 2", active, err)
		}
		first, _ := s.GetUserCourse(ctx, 5, 1)
		if first.IsActive {
			t.Error("course 1 should have been deactivated")
		}
	})

	t.Run("submission keys are unique", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		sub := store.Submission{LearnerID: 5, Kind: store.KindLesson, TargetID: 101, Key: "k1",
			Fingerprint: []byte{1, 2}, Result: []byte(`{"score":2}`), CreatedAt: base}
		if err := s.SaveSubmission(ctx, sub); err != nil {
			t.Fatalf("SaveSubmission() error = %v", err)
		}
		if err := s.SaveSubmission(ctx, sub); !errors.Is(err, store.ErrDuplicate) {
			t.Errorf("second SaveSubmission() error = %v, want ErrDuplicate", err)
		}

		got, err := s.GetSubmission(ctx, 5, store.KindLesson, 101, "k1")
		if err != nil {
			t.Fatalf("GetSubmission() error = %v", err)
		}
		if string(got.Result) != `{"score":2}` {
			t.Errorf("Result = %s", got.Result)
		}
		if _, err := s.GetSubmission(ctx, 5, store.KindScene, 101, "k1"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("scene lookup error = %v, want ErrNotFound", err)
		}
	})

	t.Run("mistake sets", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		_ = s.AddMistakes(ctx, 5, store.KindLesson, base, 3, 1, 2, 1)
		_ = s.AddMistakes(ctx, 5, store.KindScene, base, 9)
		_ = s.ClearMistakes(ctx, 5, store.KindLesson, 2)
		_ = s.AddMistakes(ctx, 5, store.KindLesson, base.Add(time.Hour), 3, 4)

		got, err := s.ListMistakes(ctx, 5, store.KindLesson)
		if err != nil {
			t.Fatalf("ListMistakes() error = %v", err)
		}
		want := []store.Mistake{
			{ItemID: 1, MarkedAt: base},
			{ItemID: 3, MarkedAt: base},
			{ItemID: 4, MarkedAt: base.Add(time.Hour)},
		}
		if len(got) != len(want) {
			t.Fatalf("ListMistakes() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i].ItemID != want[i].ItemID || !got[i].MarkedAt.Equal(want[i].MarkedAt) {
				t.Errorf("ListMistakes()[%d] = %+v, want %+v", i, got[i], want[i])
			}
		}
	})

	t.Run("learner lock serializes transactions", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		var (
			mu    sync.Mutex
			order []string
		)
		record := func(name string) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}

		locked := make(chan struct{})
		release := make(chan struct{})
		errA := make(chan error, 1)
		go func() {
			errA <- s.WithinTx(ctx, func(r store.Repository) error {
				if err := r.LockLearner(ctx, 5); err != nil {
					return err
				}
				close(locked)
				<-release
				record("first")
				return r.SaveUserProgress(ctx, store.UserProgress{LearnerID: 5, CompletedLessons: 1, LastUpdatedAt: base})
			})
		}()
		select {
		case <-locked:
		case err := <-errA:
			t.Fatalf("first transaction error = %v", err)
		}

		errB := make(chan error, 1)
		go func() {
			errB <- s.WithinTx(ctx, func(r store.Repository) error {
				if err := r.LockLearner(ctx, 5); err != nil {
					return err
				}
				record("second")
				p, err := r.GetUserProgress(ctx, 5)
				if err != nil {
					return err
				}
				p.CompletedLessons++
				return r.SaveUserProgress(ctx, p)
			})
		}()

		time.Sleep(100 * time.Millisecond)
		close(release)
		if err := <-errA; err != nil {
			t.Fatalf("first transaction error = %v", err)
		}
		if err := <-errB; err != nil {
			t.Fatalf("second transaction error = %v", err)
		}

		if want := []string{"first", "second"}; !slices.Equal(order, want) {
			t.Errorf("order = %v, want %v", order, want)
		}
		p, err := s.GetUserProgress(ctx, 5)
		if err != nil {
			t.Fatalf("GetUserProgress() error = %v", err)
		}
		if p.CompletedLessons != 2 {
			t.Errorf("CompletedLessons = %d, want 2: the second writer must see the first", p.CompletedLessons)
		}
	})

	t.Run("due vocabulary earliest first", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		var ids []int64
		for _, w := range []string{"hola", "adiós", "gracias"} {
			item, err := s.SaveVocabularyItem(ctx, content.VocabularyItem{Word: w})
			if err != nil {
				t.Fatalf("SaveVocabularyItem() error = %v", err)
			}
			ids = append(ids, item.ID)
		}
		again, err := s.SaveVocabularyItem(ctx, content.VocabularyItem{Word: "HOLA", Translation: "hello"})
		if err != nil || again.ID != ids[0] {
			t.Errorf("re-saving a word should keep its id: got %+v, %v", again, err)
		}

		due := []time.Time{base.Add(2 * time.Hour), base.Add(time.Hour), base.Add(48 * time.Hour)}
		for i, id := range ids {
			uv := store.UserVocabulary{LearnerID: 5, ItemID: id, State: srs.State{AddedAt: base, NextReviewAt: due[i]}}
			if err := s.SaveUserVocabulary(ctx, uv); err != nil {
				t.Fatalf("SaveUserVocabulary() error = %v", err)
			}
		}

		got, err := s.ListDueVocabulary(ctx, 5, base.Add(3*time.Hour))
		if err != nil {
			t.Fatalf("ListDueVocabulary() error = %v", err)
		}
		if len(got) != 2 || got[0].ItemID != ids[1] || got[1].ItemID != ids[0] {
			t.Errorf("ListDueVocabulary() = %+v", got)
		}
	})

	t.Run("achievements granted once", func(t *testing.T) {
		s := newStore(t)
		seedCatalog(t, s)
		ctx := t.Context()

		ua := store.UserAchievement{LearnerID: 5, AchievementID: 1, EarnedAt: base}
		first, err := s.GrantAchievement(ctx, ua)
		if err != nil || !first {
			t.Fatalf("first GrantAchievement() = %v, %v", first, err)
		}
		second, err := s.GrantAchievement(ctx, ua)
		if err != nil || second {
			t.Errorf("second GrantAchievement() = %v, %v, want false", second, err)
		}
	})

	t.Run("transaction rolls back on error", func(t *testing.T) {
		s := newStore(t)
		seedCatalog(t, s)
		ctx := t.Context()
		boom := errors.New("boom")

		err := s.WithinTx(ctx, func(r store.Repository) error {
			if _, err := r.AppendLessonResult(ctx, store.LessonResult{LearnerID: 5, LessonID: 101, Score: 2, Total: 2, Passed: true, CompletedAt: base}); err != nil {
				return err
			}
			if err := r.SaveLessonProgress(ctx, store.LessonProgress{LearnerID: 5, LessonID: 101, IsCompleted: true, BestScore: 2}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("WithinTx() error = %v, want boom", err)
		}

		results, _ := s.ListLessonResults(ctx, 5)
		if len(results) != 0 {
			t.Errorf("results after rollback = %v", results)
		}
		if _, err := s.GetLessonProgress(ctx, 5, 101); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("progress after rollback error = %v, want ErrNotFound", err)
		}
	})

	t.Run("transaction commits", func(t *testing.T) {
		s := newStore(t)
		seedCatalog(t, s)
		ctx := t.Context()

		err := s.WithinTx(ctx, func(r store.Repository) error {
			return r.SaveUserProgress(ctx, store.UserProgress{LearnerID: 5, CompletedLessons: 1, TotalScore: 2, LastUpdatedAt: base})
		})
		if err != nil {
			t.Fatalf("WithinTx() error = %v", err)
		}
		got, err := s.GetUserProgress(ctx, 5)
		if err != nil || got.TotalScore != 2 {
			t.Errorf("GetUserProgress() = %+v, %v", got, err)
		}
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	runContract(t, func(*testing.T) store.Store { return store.NewMemoryStore() })
}

func TestMemoryStore_TxIsolation(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(r store.Repository) error {
		if err := r.SaveUserProgress(ctx, store.UserProgress{LearnerID: 1, TotalScore: 9}); err != nil {
			return err
		}
		// Reads inside the transaction see its own writes.
		p, err := r.GetUserProgress(ctx, 1)
		if err != nil || p.TotalScore != 9 {
			t.Errorf("in-tx read = %+v, %v", p, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithinTx() error = %v", err)
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithinTx(ctx, func(store.Repository) error {
		called = true
		return nil
	})
	if err == nil || called {
		t.Errorf("WithinTx() on canceled context = %v, called = %v", err, called)
	}
}
