package store

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/p-n-ai/pai-lingo/internal/content"
)

type locker interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

// nopLocker guards a transaction snapshot that the owning WithinTx call
// already holds exclusively.
type nopLocker struct{}

func (nopLocker) Lock()    {}
func (nopLocker) Unlock()  {}
func (nopLocker) RLock()   {}
func (nopLocker) RUnlock() {}

type learnerKey struct {
	learner, id int64
}

type mistakeKey struct {
	learner int64
	kind    Kind
	id      int64
}

type submissionKey struct {
	learner int64
	kind    Kind
	target  int64
	key     string
}

type memData struct {
	courses      map[int64]content.Course
	topics       map[int64]content.Topic
	lessons      map[int64]content.Lesson
	exercises    map[int64]content.Exercise
	scenes       map[int64]content.Scene
	steps        map[int64]content.SceneStep
	vocab        map[int64]content.VocabularyItem
	achievements map[int64]Achievement

	lessonProgress   map[learnerKey]LessonProgress
	lessonResults    []LessonResult
	sceneAttempts    map[learnerKey]SceneAttempt
	userCourses      map[learnerKey]UserCourse
	submissions      map[submissionKey]Submission
	mistakes         map[mistakeKey]time.Time
	userVocab        map[learnerKey]UserVocabulary
	progress         map[int64]UserProgress
	userAchievements map[learnerKey]UserAchievement

	lastResultID int64
	lastVocabID  int64
}

func newMemData() *memData {
	return &memData{
		courses:          make(map[int64]content.Course),
		topics:           make(map[int64]content.Topic),
		lessons:          make(map[int64]content.Lesson),
		exercises:        make(map[int64]content.Exercise),
		scenes:           make(map[int64]content.Scene),
		steps:            make(map[int64]content.SceneStep),
		vocab:            make(map[int64]content.VocabularyItem),
		achievements:     make(map[int64]Achievement),
		lessonProgress:   make(map[learnerKey]LessonProgress),
		sceneAttempts:    make(map[learnerKey]SceneAttempt),
		userCourses:      make(map[learnerKey]UserCourse),
		submissions:      make(map[submissionKey]Submission),
		mistakes:         make(map[mistakeKey]time.Time),
		userVocab:        make(map[learnerKey]UserVocabulary),
		progress:         make(map[int64]UserProgress),
		userAchievements: make(map[learnerKey]UserAchievement),
	}
}

// clone copies every table. Stored values are never mutated in place, so a
// shallow copy of each map is a full snapshot.
func (d *memData) clone() *memData {
	return &memData{
		courses:          maps.Clone(d.courses),
		topics:           maps.Clone(d.topics),
		lessons:          maps.Clone(d.lessons),
		exercises:        maps.Clone(d.exercises),
		scenes:           maps.Clone(d.scenes),
		steps:            maps.Clone(d.steps),
		vocab:            maps.Clone(d.vocab),
		achievements:     maps.Clone(d.achievements),
		lessonProgress:   maps.Clone(d.lessonProgress),
		lessonResults:    slices.Clone(d.lessonResults),
		sceneAttempts:    maps.Clone(d.sceneAttempts),
		userCourses:      maps.Clone(d.userCourses),
		submissions:      maps.Clone(d.submissions),
		mistakes:         maps.Clone(d.mistakes),
		userVocab:        maps.Clone(d.userVocab),
		progress:         maps.Clone(d.progress),
		userAchievements: maps.Clone(d.userAchievements),
		lastResultID:     d.lastResultID,
		lastVocabID:      d.lastVocabID,
	}
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	*memRepo
	mu sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.memRepo = &memRepo{mu: &s.mu, d: newMemData()}
	return s
}

// WithinTx runs fn against a private snapshot and publishes it only when fn
// succeeds. Transactions are serialized.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.d.clone()
	if err := fn(&memRepo{mu: nopLocker{}, d: snapshot}); err != nil {
		return err
	}
	s.d = snapshot
	return nil
}

type memRepo struct {
	mu locker
	d  *memData
}

func byOrder[T any](order func(T) (int, int64)) func(a, b T) int {
	return func(a, b T) int {
		ao, aid := order(a)
		bo, bid := order(b)
		return cmp.Or(cmp.Compare(ao, bo), cmp.Compare(aid, bid))
	}
}

func getOr[K comparable, V any](m map[K]V, k K) (V, error) {
	v, ok := m[k]
	if !ok {
		return v, ErrNotFound
	}
	return v, nil
}

// Content

func (r *memRepo) GetCourse(_ context.Context, id int64) (content.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return getOr(r.d.courses, id)
}

func (r *memRepo) ListCourses(_ context.Context) ([]content.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := slices.Collect(maps.Values(r.d.courses))
	slices.SortFunc(out, func(a, b content.Course) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *memRepo) GetTopic(_ context.Context, id int64) (content.Topic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return getOr(r.d.topics, id)
}

func (r *memRepo) ListTopics(_ context.Context, courseID int64) ([]content.Topic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.topicsOf(courseID), nil
}

func (r *memRepo) topicsOf(courseID int64) []content.Topic {
	var out []content.Topic
	for _, t := range r.d.topics {
		if t.CourseID == courseID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, byOrder(func(t content.Topic) (int, int64) { return t.Order, t.ID }))
	return out
}

func (r *memRepo) lessonsOf(topicID int64) []content.Lesson {
	var out []content.Lesson
	for _, l := range r.d.lessons {
		if l.TopicID == topicID {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, byOrder(func(l content.Lesson) (int, int64) { return l.Order, l.ID }))
	return out
}

func (r *memRepo) GetLesson(_ context.Context, id int64) (content.Lesson, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return getOr(r.d.lessons, id)
}

func (r *memRepo) ListCourseLessons(_ context.Context, courseID int64) ([]content.Lesson, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []content.Lesson
	for _, t := range r.topicsOf(courseID) {
		out = append(out, r.lessonsOf(t.ID)...)
	}
	return out, nil
}

func (r *memRepo) ListAllLessons(_ context.Context) ([]content.Lesson, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := slices.Collect(maps.Values(r.d.lessons))
	slices.SortFunc(out, func(a, b content.Lesson) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *memRepo) ListExercises(_ context.Context, lessonID int64) ([]content.Exercise, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []content.Exercise
	for _, e := range r.d.exercises {
		if e.LessonID == lessonID {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, byOrder(func(e content.Exercise) (int, int64) { return e.Order, e.ID }))
	return out, nil
}

func (r *memRepo) GetScene(_ context.Context, id int64) (content.Scene, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return getOr(r.d.scenes, id)
}

func (r *memRepo) ListScenes(_ context.Context) ([]content.Scene, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := slices.Collect(maps.Values(r.d.scenes))
	slices.SortFunc(out, byOrder(func(s content.Scene) (int, int64) { return s.Order, s.ID }))
	return out, nil
}

func (r *memRepo) ListSceneSteps(_ context.Context, sceneID int64) ([]content.SceneStep, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []content.SceneStep
	for _, s := range r.d.steps {
		if s.SceneID == sceneID {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, byOrder(func(s content.SceneStep) (int, int64) { return s.Order, s.ID }))
	return out, nil
}

func (r *memRepo) GetVocabularyItem(_ context.Context, id int64) (content.VocabularyItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return getOr(r.d.vocab, id)
}

func (r *memRepo) FindVocabularyItemByWord(_ context.Context, word string) (content.VocabularyItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findWord(word)
}

func (r *memRepo) findWord(word string) (content.VocabularyItem, error) {
	for _, v := range r.d.vocab {
		if strings.EqualFold(v.Word, word) {
			return v, nil
		}
	}
	return content.VocabularyItem{}, ErrNotFound
}

func (r *memRepo) ListVocabularyItems(_ context.Context) ([]content.VocabularyItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := slices.Collect(maps.Values(r.d.vocab))
	slices.SortFunc(out, func(a, b content.VocabularyItem) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *memRepo) ListAchievements(_ context.Context) ([]Achievement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := slices.Collect(maps.Values(r.d.achievements))
	slices.SortFunc(out, func(a, b Achievement) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *memRepo) SaveCourse(_ context.Context, c content.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.courses[c.ID] = c
	return nil
}

func (r *memRepo) SaveTopic(_ context.Context, t content.Topic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.topics[t.ID] = t
	return nil
}

func (r *memRepo) SaveLesson(_ context.Context, l content.Lesson) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.lessons[l.ID] = l
	return nil
}

func (r *memRepo) SaveExercise(_ context.Context, e content.Exercise) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.exercises[e.ID] = e
	return nil
}

func (r *memRepo) SaveScene(_ context.Context, s content.Scene) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.scenes[s.ID] = s
	return nil
}

func (r *memRepo) SaveSceneStep(_ context.Context, s content.SceneStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Payload = slices.Clone(s.Payload)
	r.d.steps[s.ID] = s
	return nil
}

func (r *memRepo) SaveVocabularyItem(_ context.Context, v content.VocabularyItem) (content.VocabularyItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, err := r.findWord(v.Word); err == nil {
		v.ID = existing.ID
	} else {
		r.d.lastVocabID++
		v.ID = r.d.lastVocabID
	}
	r.d.vocab[v.ID] = v
	return v, nil
}

func (r *memRepo) SaveAchievement(_ context.Context, a Achievement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.achievements[a.ID] = a
	return nil
}

// Lessons

func (r *memRepo) GetLessonProgress(_ context.Context, learnerID, lessonID int64) (LessonProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return getOr(r.d.lessonProgress, learnerKey{learnerID, lessonID})
}

func (r *memRepo) ListLessonProgress(_ context.Context, learnerID int64) ([]LessonProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []LessonProgress
	for k, p := range r.d.lessonProgress {
		if k.learner == learnerID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b LessonProgress) int { return cmp.Compare(a.LessonID, b.LessonID) })
	return out, nil
}

func (r *memRepo) SaveLessonProgress(_ context.Context, p LessonProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := learnerKey{p.LearnerID, p.LessonID}
	if cur, ok := r.d.lessonProgress[k]; ok {
		p = cur.merge(p)
	}
	r.d.lessonProgress[k] = p
	return nil
}

func (r *memRepo) AppendLessonResult(_ context.Context, res LessonResult) (LessonResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.lastResultID++
	res.ID = r.d.lastResultID
	r.d.lessonResults = append(r.d.lessonResults, res)
	return res, nil
}

func (r *memRepo) ListLessonResults(_ context.Context, learnerID int64) ([]LessonResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []LessonResult
	for _, res := range r.d.lessonResults {
		if res.LearnerID == learnerID {
			out = append(out, res)
		}
	}
	return out, nil
}

// Scenes

func (r *memRepo) GetSceneAttempt(_ context.Context, learnerID, sceneID int64) (SceneAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return getOr(r.d.sceneAttempts, learnerKey{learnerID, sceneID})
}

func (r *memRepo) ListSceneAttempts(_ context.Context, learnerID int64) ([]SceneAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []SceneAttempt
	for k, a := range r.d.sceneAttempts {
		if k.learner == learnerID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b SceneAttempt) int { return cmp.Compare(a.SceneID, b.SceneID) })
	return out, nil
}

func (r *memRepo) SaveSceneAttempt(_ context.Context, a SceneAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := learnerKey{a.LearnerID, a.SceneID}
	if cur, ok := r.d.sceneAttempts[k]; ok {
		a = cur.merge(a)
	}
	r.d.sceneAttempts[k] = a
	return nil
}

// Courses

func (r *memRepo) GetUserCourse(_ context.Context, learnerID, courseID int64) (UserCourse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return getOr(r.d.userCourses, learnerKey{learnerID, courseID})
}

func (r *memRepo) GetActiveCourse(_ context.Context, learnerID int64) (UserCourse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k, uc := range r.d.userCourses {
		if k.learner == learnerID && uc.IsActive {
			return uc, nil
		}
	}
	return UserCourse{}, ErrNotFound
}

func (r *memRepo) SaveUserCourse(_ context.Context, uc UserCourse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if uc.IsActive {
		for k, other := range r.d.userCourses {
			if k.learner == uc.LearnerID && other.IsActive {
				other.IsActive = false
				r.d.userCourses[k] = other
			}
		}
	}
	r.d.userCourses[learnerKey{uc.LearnerID, uc.CourseID}] = uc
	return nil
}

// Submissions

func (r *memRepo) GetSubmission(_ context.Context, learnerID int64, kind Kind, targetID int64, key string) (Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, err := getOr(r.d.submissions, submissionKey{learnerID, kind, targetID, key})
	if err != nil {
		return s, err
	}
	s.Result = slices.Clone(s.Result)
	s.Fingerprint = slices.Clone(s.Fingerprint)
	return s, nil
}

func (r *memRepo) SaveSubmission(_ context.Context, s Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := submissionKey{s.LearnerID, s.Kind, s.TargetID, s.Key}
	if _, ok := r.d.submissions[k]; ok {
		return ErrDuplicate
	}
	s.Result = slices.Clone(s.Result)
	s.Fingerprint = slices.Clone(s.Fingerprint)
	r.d.submissions[k] = s
	return nil
}

// Mistakes

func (r *memRepo) AddMistakes(_ context.Context, learnerID int64, kind Kind, at time.Time, ids ...int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		k := mistakeKey{learnerID, kind, id}
		if _, ok := r.d.mistakes[k]; !ok {
			r.d.mistakes[k] = at.UTC()
		}
	}
	return nil
}

func (r *memRepo) ClearMistakes(_ context.Context, learnerID int64, kind Kind, ids ...int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.d.mistakes, mistakeKey{learnerID, kind, id})
	}
	return nil
}

func (r *memRepo) ListMistakes(_ context.Context, learnerID int64, kind Kind) ([]Mistake, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Mistake
	for k, at := range r.d.mistakes {
		if k.learner == learnerID && k.kind == kind {
			out = append(out, Mistake{ItemID: k.id, MarkedAt: at})
		}
	}
	slices.SortFunc(out, func(a, b Mistake) int { return cmp.Compare(a.ItemID, b.ItemID) })
	return out, nil
}

// Vocabulary

func (r *memRepo) GetUserVocabulary(_ context.Context, learnerID, itemID int64) (UserVocabulary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return getOr(r.d.userVocab, learnerKey{learnerID, itemID})
}

func (r *memRepo) SaveUserVocabulary(_ context.Context, uv UserVocabulary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.userVocab[learnerKey{uv.LearnerID, uv.ItemID}] = uv
	return nil
}

func (r *memRepo) ListDueVocabulary(_ context.Context, learnerID int64, now time.Time) ([]UserVocabulary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []UserVocabulary
	for k, uv := range r.d.userVocab {
		if k.learner == learnerID && uv.IsDue(now) {
			out = append(out, uv)
		}
	}
	slices.SortFunc(out, func(a, b UserVocabulary) int {
		return cmp.Or(a.NextReviewAt.Compare(b.NextReviewAt), cmp.Compare(a.ItemID, b.ItemID))
	})
	return out, nil
}

// Rollup and achievements

func (r *memRepo) GetUserProgress(_ context.Context, learnerID int64) (UserProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return getOr(r.d.progress, learnerID)
}

// LockLearner is a no-op: WithinTx already holds the store lock for the
// whole transaction.
func (r *memRepo) LockLearner(context.Context, int64) error { return nil }

func (r *memRepo) SaveUserProgress(_ context.Context, p UserProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.d.progress[p.LearnerID] = p
	return nil
}

func (r *memRepo) GrantAchievement(_ context.Context, ua UserAchievement) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := learnerKey{ua.LearnerID, ua.AchievementID}
	if _, ok := r.d.userAchievements[k]; ok {
		return false, nil
	}
	r.d.userAchievements[k] = ua
	return true, nil
}

func (r *memRepo) ListUserAchievements(_ context.Context, learnerID int64) ([]UserAchievement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []UserAchievement
	for k, ua := range r.d.userAchievements {
		if k.learner == learnerID {
			out = append(out, ua)
		}
	}
	slices.SortFunc(out, func(a, b UserAchievement) int { return cmp.Compare(a.AchievementID, b.AchievementID) })
	return out, nil
}
