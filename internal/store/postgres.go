package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-lingo/internal/content"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	*pgRepo
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over an open pool. The schema must already
// be migrated.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pgRepo: &pgRepo{q: pool}, pool: pool}, nil
}

// WithinTx runs fn inside a database transaction that commits only when fn
// returns nil.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Repository) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&pgRepo{q: tx})
	})
}

type pgRepo struct {
	q querier
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nullBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

// Content

const (
	courseCols   = `id, title, language, published`
	topicCols    = `id, course_id, title, ord`
	lessonCols   = `id, topic_id, title, theory, ord`
	exerciseCols = `id, lesson_id, type, prompt, correct_answer, ord`
	sceneCols    = `id, title, type, ord, published`
	stepCols     = `id, scene_id, ord, speaker, text, type, media_ref, payload`
	vocabCols    = `id, word, translation, example`
	achieveCols  = `id, code, title, kind, threshold`
)

func scanCourse(row pgx.CollectableRow) (content.Course, error) {
	var c content.Course
	err := row.Scan(&c.ID, &c.Title, &c.Language, &c.Published)
	return c, err
}

func scanTopic(row pgx.CollectableRow) (content.Topic, error) {
	var t content.Topic
	err := row.Scan(&t.ID, &t.CourseID, &t.Title, &t.Order)
	return t, err
}

func scanLesson(row pgx.CollectableRow) (content.Lesson, error) {
	var l content.Lesson
	err := row.Scan(&l.ID, &l.TopicID, &l.Title, &l.Theory, &l.Order)
	return l, err
}

func scanExercise(row pgx.CollectableRow) (content.Exercise, error) {
	var (
		e   content.Exercise
		typ string
	)
	if err := row.Scan(&e.ID, &e.LessonID, &typ, &e.Prompt, &e.CorrectAnswer, &e.Order); err != nil {
		return e, err
	}
	t, err := content.ParseExerciseType(typ)
	e.Type = t
	return e, err
}

func scanScene(row pgx.CollectableRow) (content.Scene, error) {
	var (
		s   content.Scene
		typ string
	)
	if err := row.Scan(&s.ID, &s.Title, &typ, &s.Order, &s.Published); err != nil {
		return s, err
	}
	t, err := content.ParseSceneType(typ)
	s.Type = t
	return s, err
}

func scanStep(row pgx.CollectableRow) (content.SceneStep, error) {
	var (
		s       content.SceneStep
		typ     string
		payload []byte
	)
	if err := row.Scan(&s.ID, &s.SceneID, &s.Order, &s.Speaker, &s.Text, &typ, &s.MediaRef, &payload); err != nil {
		return s, err
	}
	s.Payload = payload
	t, err := content.ParseStepType(typ)
	s.Type = t
	return s, err
}

func scanVocab(row pgx.CollectableRow) (content.VocabularyItem, error) {
	var v content.VocabularyItem
	err := row.Scan(&v.ID, &v.Word, &v.Translation, &v.Example)
	return v, err
}

func scanAchievement(row pgx.CollectableRow) (Achievement, error) {
	var a Achievement
	err := row.Scan(&a.ID, &a.Code, &a.Title, &a.Kind, &a.Threshold)
	return a, err
}

// queryAll runs a query and collects every row with scan.
func queryAll[T any](ctx context.Context, q querier, scan pgx.RowToFunc[T], sql string, args ...any) ([]T, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scan)
}

// queryOne runs a query expected to return exactly one row.
func queryOne[T any](ctx context.Context, q querier, scan pgx.RowToFunc[T], sql string, args ...any) (T, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	v, err := pgx.CollectExactlyOneRow(rows, scan)
	return v, notFound(err)
}

func (r *pgRepo) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return r.q.Exec(ctx, sql, args...)
}

func (r *pgRepo) GetCourse(ctx context.Context, id int64) (content.Course, error) {
	c, err := queryOne(ctx, r.q, scanCourse, `SELECT `+courseCols+` FROM courses WHERE id = $1`, id)
	if err != nil {
		return c, fmt.Errorf("get course %d: %w", id, err)
	}
	return c, nil
}

func (r *pgRepo) ListCourses(ctx context.Context) ([]content.Course, error) {
	out, err := queryAll(ctx, r.q, scanCourse, `SELECT `+courseCols+` FROM courses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return out, nil
}

func (r *pgRepo) GetTopic(ctx context.Context, id int64) (content.Topic, error) {
	t, err := queryOne(ctx, r.q, scanTopic, `SELECT `+topicCols+` FROM topics WHERE id = $1`, id)
	if err != nil {
		return t, fmt.Errorf("get topic %d: %w", id, err)
	}
	return t, nil
}

func (r *pgRepo) ListTopics(ctx context.Context, courseID int64) ([]content.Topic, error) {
	out, err := queryAll(ctx, r.q, scanTopic,
		`SELECT `+topicCols+` FROM topics WHERE course_id = $1 ORDER BY ord, id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return out, nil
}

func (r *pgRepo) GetLesson(ctx context.Context, id int64) (content.Lesson, error) {
	l, err := queryOne(ctx, r.q, scanLesson, `SELECT `+lessonCols+` FROM lessons WHERE id = $1`, id)
	if err != nil {
		return l, fmt.Errorf("get lesson %d: %w", id, err)
	}
	return l, nil
}

func (r *pgRepo) ListCourseLessons(ctx context.Context, courseID int64) ([]content.Lesson, error) {
	out, err := queryAll(ctx, r.q, scanLesson,
		`SELECT l.id, l.topic_id, l.title, l.theory, l.ord
		 FROM lessons l
		 JOIN topics t ON t.id = l.topic_id
		 WHERE t.course_id = $1
		 ORDER BY t.ord, t.id, l.ord, l.id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list course lessons: %w", err)
	}
	return out, nil
}

func (r *pgRepo) ListAllLessons(ctx context.Context) ([]content.Lesson, error) {
	out, err := queryAll(ctx, r.q, scanLesson, `SELECT `+lessonCols+` FROM lessons ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return out, nil
}

func (r *pgRepo) ListExercises(ctx context.Context, lessonID int64) ([]content.Exercise, error) {
	out, err := queryAll(ctx, r.q, scanExercise,
		`SELECT `+exerciseCols+` FROM exercises WHERE lesson_id = $1 ORDER BY ord, id`, lessonID)
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	return out, nil
}

func (r *pgRepo) GetScene(ctx context.Context, id int64) (content.Scene, error) {
	s, err := queryOne(ctx, r.q, scanScene, `SELECT `+sceneCols+` FROM scenes WHERE id = $1`, id)
	if err != nil {
		return s, fmt.Errorf("get scene %d: %w", id, err)
	}
	return s, nil
}

func (r *pgRepo) ListScenes(ctx context.Context) ([]content.Scene, error) {
	out, err := queryAll(ctx, r.q, scanScene, `SELECT `+sceneCols+` FROM scenes ORDER BY ord, id`)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	return out, nil
}

func (r *pgRepo) ListSceneSteps(ctx context.Context, sceneID int64) ([]content.SceneStep, error) {
	out, err := queryAll(ctx, r.q, scanStep,
		`SELECT `+stepCols+` FROM scene_steps WHERE scene_id = $1 ORDER BY ord, id`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("list scene steps: %w", err)
	}
	return out, nil
}

func (r *pgRepo) GetVocabularyItem(ctx context.Context, id int64) (content.VocabularyItem, error) {
	v, err := queryOne(ctx, r.q, scanVocab, `SELECT `+vocabCols+` FROM vocabulary_items WHERE id = $1`, id)
	if err != nil {
		return v, fmt.Errorf("get vocabulary item %d: %w", id, err)
	}
	return v, nil
}

func (r *pgRepo) FindVocabularyItemByWord(ctx context.Context, word string) (content.VocabularyItem, error) {
	v, err := queryOne(ctx, r.q, scanVocab,
		`SELECT `+vocabCols+` FROM vocabulary_items WHERE lower(word) = lower($1)`, word)
	if err != nil {
		return v, fmt.Errorf("find vocabulary item %q: %w", word, err)
	}
	return v, nil
}

func (r *pgRepo) ListVocabularyItems(ctx context.Context) ([]content.VocabularyItem, error) {
	out, err := queryAll(ctx, r.q, scanVocab, `SELECT `+vocabCols+` FROM vocabulary_items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list vocabulary items: %w", err)
	}
	return out, nil
}

func (r *pgRepo) ListAchievements(ctx context.Context) ([]Achievement, error) {
	out, err := queryAll(ctx, r.q, scanAchievement, `SELECT `+achieveCols+` FROM achievements ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	return out, nil
}

func (r *pgRepo) SaveCourse(ctx context.Context, c content.Course) error {
	_, err := r.exec(ctx,
		`INSERT INTO courses (id, title, language, published) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, language = EXCLUDED.language,
		   published = EXCLUDED.published`,
		c.ID, c.Title, c.Language, c.Published)
	if err != nil {
		return fmt.Errorf("save course %d: %w", c.ID, err)
	}
	return nil
}

func (r *pgRepo) SaveTopic(ctx context.Context, t content.Topic) error {
	_, err := r.exec(ctx,
		`INSERT INTO topics (id, course_id, title, ord) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET course_id = EXCLUDED.course_id, title = EXCLUDED.title,
		   ord = EXCLUDED.ord`,
		t.ID, t.CourseID, t.Title, t.Order)
	if err != nil {
		return fmt.Errorf("save topic %d: %w", t.ID, err)
	}
	return nil
}

func (r *pgRepo) SaveLesson(ctx context.Context, l content.Lesson) error {
	_, err := r.exec(ctx,
		`INSERT INTO lessons (id, topic_id, title, theory, ord) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET topic_id = EXCLUDED.topic_id, title = EXCLUDED.title,
		   theory = EXCLUDED.theory, ord = EXCLUDED.ord`,
		l.ID, l.TopicID, l.Title, l.Theory, l.Order)
	if err != nil {
		return fmt.Errorf("save lesson %d: %w", l.ID, err)
	}
	return nil
}

func (r *pgRepo) SaveExercise(ctx context.Context, e content.Exercise) error {
	_, err := r.exec(ctx,
		`INSERT INTO exercises (id, lesson_id, type, prompt, correct_answer, ord) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET lesson_id = EXCLUDED.lesson_id, type = EXCLUDED.type,
		   prompt = EXCLUDED.prompt, correct_answer = EXCLUDED.correct_answer, ord = EXCLUDED.ord`,
		e.ID, e.LessonID, string(e.Type), e.Prompt, e.CorrectAnswer, e.Order)
	if err != nil {
		return fmt.Errorf("save exercise %d: %w", e.ID, err)
	}
	return nil
}

func (r *pgRepo) SaveScene(ctx context.Context, s content.Scene) error {
	_, err := r.exec(ctx,
		`INSERT INTO scenes (id, title, type, ord, published) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, type = EXCLUDED.type,
		   ord = EXCLUDED.ord, published = EXCLUDED.published`,
		s.ID, s.Title, string(s.Type), s.Order, s.Published)
	if err != nil {
		return fmt.Errorf("save scene %d: %w", s.ID, err)
	}
	return nil
}

func (r *pgRepo) SaveSceneStep(ctx context.Context, s content.SceneStep) error {
	_, err := r.exec(ctx,
		`INSERT INTO scene_steps (id, scene_id, ord, speaker, text, type, media_ref, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET scene_id = EXCLUDED.scene_id, ord = EXCLUDED.ord,
		   speaker = EXCLUDED.speaker, text = EXCLUDED.text, type = EXCLUDED.type,
		   media_ref = EXCLUDED.media_ref, payload = EXCLUDED.payload`,
		s.ID, s.SceneID, s.Order, s.Speaker, s.Text, string(s.Type), s.MediaRef, nullBytes(s.Payload))
	if err != nil {
		return fmt.Errorf("save scene step %d: %w", s.ID, err)
	}
	return nil
}

func (r *pgRepo) SaveVocabularyItem(ctx context.Context, v content.VocabularyItem) (content.VocabularyItem, error) {
	out, err := queryOne(ctx, r.q, scanVocab,
		`INSERT INTO vocabulary_items (word, translation, example) VALUES ($1, $2, $3)
		 ON CONFLICT ((lower(word))) DO UPDATE SET translation = EXCLUDED.translation,
		   example = EXCLUDED.example
		 RETURNING `+vocabCols,
		v.Word, v.Translation, v.Example)
	if err != nil {
		return out, fmt.Errorf("save vocabulary item %q: %w", v.Word, err)
	}
	return out, nil
}

func (r *pgRepo) SaveAchievement(ctx context.Context, a Achievement) error {
	_, err := r.exec(ctx,
		`INSERT INTO achievements (id, code, title, kind, threshold) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET code = EXCLUDED.code, title = EXCLUDED.title,
		   kind = EXCLUDED.kind, threshold = EXCLUDED.threshold`,
		a.ID, a.Code, a.Title, string(a.Kind), a.Threshold)
	if err != nil {
		return fmt.Errorf("save achievement %q: %w", a.Code, err)
	}
	return nil
}

// Lessons

const progressCols = `learner_id, lesson_id, is_unlocked, is_completed, best_score, last_attempt_at`

func scanProgress(row pgx.CollectableRow) (LessonProgress, error) {
	var p LessonProgress
	err := row.Scan(&p.LearnerID, &p.LessonID, &p.IsUnlocked, &p.IsCompleted, &p.BestScore, &p.LastAttemptAt)
	return p, err
}

func (r *pgRepo) GetLessonProgress(ctx context.Context, learnerID, lessonID int64) (LessonProgress, error) {
	p, err := queryOne(ctx, r.q, scanProgress,
		`SELECT `+progressCols+` FROM lesson_progress WHERE learner_id = $1 AND lesson_id = $2`,
		learnerID, lessonID)
	if err != nil {
		return p, fmt.Errorf("get lesson progress: %w", err)
	}
	return p, nil
}

func (r *pgRepo) ListLessonProgress(ctx context.Context, learnerID int64) ([]LessonProgress, error) {
	out, err := queryAll(ctx, r.q, scanProgress,
		`SELECT `+progressCols+` FROM lesson_progress WHERE learner_id = $1 ORDER BY lesson_id`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list lesson progress: %w", err)
	}
	return out, nil
}

func (r *pgRepo) SaveLessonProgress(ctx context.Context, p LessonProgress) error {
	_, err := r.exec(ctx,
		`INSERT INTO lesson_progress (`+progressCols+`) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (learner_id, lesson_id) DO UPDATE SET
		   is_unlocked = lesson_progress.is_unlocked OR EXCLUDED.is_unlocked,
		   is_completed = lesson_progress.is_completed OR EXCLUDED.is_completed,
		   best_score = GREATEST(lesson_progress.best_score, EXCLUDED.best_score),
		   last_attempt_at = GREATEST(lesson_progress.last_attempt_at, EXCLUDED.last_attempt_at)`,
		p.LearnerID, p.LessonID, p.IsUnlocked, p.IsCompleted, p.BestScore, p.LastAttemptAt)
	if err != nil {
		return fmt.Errorf("save lesson progress: %w", err)
	}
	return nil
}

const resultCols = `id, learner_id, lesson_id, score, total, passed, completed_at`

func scanResult(row pgx.CollectableRow) (LessonResult, error) {
	var res LessonResult
	err := row.Scan(&res.ID, &res.LearnerID, &res.LessonID, &res.Score, &res.Total, &res.Passed, &res.CompletedAt)
	return res, err
}

func (r *pgRepo) AppendLessonResult(ctx context.Context, res LessonResult) (LessonResult, error) {
	out, err := queryOne(ctx, r.q, scanResult,
		`INSERT INTO lesson_results (learner_id, lesson_id, score, total, passed, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+resultCols,
		res.LearnerID, res.LessonID, res.Score, res.Total, res.Passed, res.CompletedAt)
	if err != nil {
		return out, fmt.Errorf("append lesson result: %w", err)
	}
	return out, nil
}

func (r *pgRepo) ListLessonResults(ctx context.Context, learnerID int64) ([]LessonResult, error) {
	out, err := queryAll(ctx, r.q, scanResult,
		`SELECT `+resultCols+` FROM lesson_results WHERE learner_id = $1 ORDER BY id`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list lesson results: %w", err)
	}
	return out, nil
}

// Scenes

const attemptCols = `learner_id, scene_id, is_completed, completed_at, last_attempt_at`

func scanAttempt(row pgx.CollectableRow) (SceneAttempt, error) {
	var a SceneAttempt
	err := row.Scan(&a.LearnerID, &a.SceneID, &a.IsCompleted, &a.CompletedAt, &a.LastAttemptAt)
	return a, err
}

func (r *pgRepo) GetSceneAttempt(ctx context.Context, learnerID, sceneID int64) (SceneAttempt, error) {
	a, err := queryOne(ctx, r.q, scanAttempt,
		`SELECT `+attemptCols+` FROM scene_attempts WHERE learner_id = $1 AND scene_id = $2`,
		learnerID, sceneID)
	if err != nil {
		return a, fmt.Errorf("get scene attempt: %w", err)
	}
	return a, nil
}

func (r *pgRepo) ListSceneAttempts(ctx context.Context, learnerID int64) ([]SceneAttempt, error) {
	out, err := queryAll(ctx, r.q, scanAttempt,
		`SELECT `+attemptCols+` FROM scene_attempts WHERE learner_id = $1 ORDER BY scene_id`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list scene attempts: %w", err)
	}
	return out, nil
}

func (r *pgRepo) SaveSceneAttempt(ctx context.Context, a SceneAttempt) error {
	_, err := r.exec(ctx,
		`INSERT INTO scene_attempts (`+attemptCols+`) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (learner_id, scene_id) DO UPDATE SET
		   completed_at = CASE WHEN scene_attempts.is_completed THEN scene_attempts.completed_at
		                       ELSE EXCLUDED.completed_at END,
		   is_completed = scene_attempts.is_completed OR EXCLUDED.is_completed,
		   last_attempt_at = GREATEST(scene_attempts.last_attempt_at, EXCLUDED.last_attempt_at)`,
		a.LearnerID, a.SceneID, a.IsCompleted, a.CompletedAt, a.LastAttemptAt)
	if err != nil {
		return fmt.Errorf("save scene attempt: %w", err)
	}
	return nil
}

// Courses

const userCourseCols = `learner_id, course_id, is_active, started_at, last_opened_at, last_lesson_id`

func scanUserCourse(row pgx.CollectableRow) (UserCourse, error) {
	var uc UserCourse
	err := row.Scan(&uc.LearnerID, &uc.CourseID, &uc.IsActive, &uc.StartedAt, &uc.LastOpenedAt, &uc.LastLessonID)
	return uc, err
}

func (r *pgRepo) GetUserCourse(ctx context.Context, learnerID, courseID int64) (UserCourse, error) {
	uc, err := queryOne(ctx, r.q, scanUserCourse,
		`SELECT `+userCourseCols+` FROM user_courses WHERE learner_id = $1 AND course_id = $2`,
		learnerID, courseID)
	if err != nil {
		return uc, fmt.Errorf("get user course: %w", err)
	}
	return uc, nil
}

func (r *pgRepo) GetActiveCourse(ctx context.Context, learnerID int64) (UserCourse, error) {
	uc, err := queryOne(ctx, r.q, scanUserCourse,
		`SELECT `+userCourseCols+` FROM user_courses WHERE learner_id = $1 AND is_active`, learnerID)
	if err != nil {
		return uc, fmt.Errorf("get active course: %w", err)
	}
	return uc, nil
}

func (r *pgRepo) SaveUserCourse(ctx context.Context, uc UserCourse) error {
	if uc.IsActive {
		if _, err := r.exec(ctx,
			`UPDATE user_courses SET is_active = false
			 WHERE learner_id = $1 AND course_id <> $2 AND is_active`,
			uc.LearnerID, uc.CourseID); err != nil {
			return fmt.Errorf("deactivate courses: %w", err)
		}
	}
	_, err := r.exec(ctx,
		`INSERT INTO user_courses (`+userCourseCols+`) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (learner_id, course_id) DO UPDATE SET is_active = EXCLUDED.is_active,
		   started_at = EXCLUDED.started_at, last_opened_at = EXCLUDED.last_opened_at,
		   last_lesson_id = EXCLUDED.last_lesson_id`,
		uc.LearnerID, uc.CourseID, uc.IsActive, uc.StartedAt, uc.LastOpenedAt, uc.LastLessonID)
	if err != nil {
		return fmt.Errorf("save user course: %w", err)
	}
	return nil
}

// Submissions

func (r *pgRepo) GetSubmission(ctx context.Context, learnerID int64, kind Kind, targetID int64, key string) (Submission, error) {
	s, err := queryOne(ctx, r.q, func(row pgx.CollectableRow) (Submission, error) {
		var s Submission
		err := row.Scan(&s.LearnerID, &s.Kind, &s.TargetID, &s.Key, &s.Fingerprint, &s.Result, &s.CreatedAt)
		return s, err
	},
		`SELECT learner_id, kind, target_id, idem_key, fingerprint, result, created_at
		 FROM submissions
		 WHERE learner_id = $1 AND kind = $2 AND target_id = $3 AND idem_key = $4`,
		learnerID, string(kind), targetID, key)
	if err != nil {
		return s, fmt.Errorf("get submission: %w", err)
	}
	return s, nil
}

func (r *pgRepo) SaveSubmission(ctx context.Context, s Submission) error {
	tag, err := r.exec(ctx,
		`INSERT INTO submissions (learner_id, kind, target_id, idem_key, fingerprint, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (learner_id, kind, target_id, idem_key) DO NOTHING`,
		s.LearnerID, string(s.Kind), s.TargetID, s.Key, s.Fingerprint, s.Result, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("save submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

// Mistakes

func (r *pgRepo) AddMistakes(ctx context.Context, learnerID int64, kind Kind, at time.Time, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.exec(ctx,
		`INSERT INTO mistakes (learner_id, kind, item_id, created_at)
		 SELECT $1, $2, unnest($3::bigint[]), $4
		 ON CONFLICT DO NOTHING`,
		learnerID, string(kind), ids, at)
	if err != nil {
		return fmt.Errorf("add mistakes: %w", err)
	}
	return nil
}

func (r *pgRepo) ClearMistakes(ctx context.Context, learnerID int64, kind Kind, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.exec(ctx,
		`DELETE FROM mistakes WHERE learner_id = $1 AND kind = $2 AND item_id = ANY($3)`,
		learnerID, string(kind), ids)
	if err != nil {
		return fmt.Errorf("clear mistakes: %w", err)
	}
	return nil
}

func scanMistake(row pgx.CollectableRow) (Mistake, error) {
	var m Mistake
	err := row.Scan(&m.ItemID, &m.MarkedAt)
	return m, err
}

func (r *pgRepo) ListMistakes(ctx context.Context, learnerID int64, kind Kind) ([]Mistake, error) {
	out, err := queryAll(ctx, r.q, scanMistake,
		`SELECT item_id, created_at FROM mistakes WHERE learner_id = $1 AND kind = $2 ORDER BY item_id`,
		learnerID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list mistakes: %w", err)
	}
	return out, nil
}

// Vocabulary

const userVocabCols = `learner_id, item_id, added_at, last_reviewed_at, next_review_at`

func scanUserVocab(row pgx.CollectableRow) (UserVocabulary, error) {
	var uv UserVocabulary
	err := row.Scan(&uv.LearnerID, &uv.ItemID, &uv.AddedAt, &uv.LastReviewedAt, &uv.NextReviewAt)
	return uv, err
}

func (r *pgRepo) GetUserVocabulary(ctx context.Context, learnerID, itemID int64) (UserVocabulary, error) {
	uv, err := queryOne(ctx, r.q, scanUserVocab,
		`SELECT `+userVocabCols+` FROM user_vocabulary WHERE learner_id = $1 AND item_id = $2`,
		learnerID, itemID)
	if err != nil {
		return uv, fmt.Errorf("get user vocabulary: %w", err)
	}
	return uv, nil
}

func (r *pgRepo) SaveUserVocabulary(ctx context.Context, uv UserVocabulary) error {
	_, err := r.exec(ctx,
		`INSERT INTO user_vocabulary (`+userVocabCols+`) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (learner_id, item_id) DO UPDATE SET
		   last_reviewed_at = EXCLUDED.last_reviewed_at, next_review_at = EXCLUDED.next_review_at`,
		uv.LearnerID, uv.ItemID, uv.AddedAt, uv.LastReviewedAt, uv.NextReviewAt)
	if err != nil {
		return fmt.Errorf("save user vocabulary: %w", err)
	}
	return nil
}

func (r *pgRepo) ListDueVocabulary(ctx context.Context, learnerID int64, now time.Time) ([]UserVocabulary, error) {
	out, err := queryAll(ctx, r.q, scanUserVocab,
		`SELECT `+userVocabCols+` FROM user_vocabulary
		 WHERE learner_id = $1 AND next_review_at <= $2
		 ORDER BY next_review_at, item_id`,
		learnerID, now)
	if err != nil {
		return nil, fmt.Errorf("list due vocabulary: %w", err)
	}
	return out, nil
}

// Rollup and achievements

// LockLearner takes a transaction-scoped advisory lock keyed by the learner,
// so concurrent submissions fold the rollup one after another. It works
// before the learner has a user_progress row.
func (r *pgRepo) LockLearner(ctx context.Context, learnerID int64) error {
	if _, err := r.exec(ctx, `SELECT pg_advisory_xact_lock($1)`, learnerID); err != nil {
		return fmt.Errorf("lock learner %d: %w", learnerID, err)
	}
	return nil
}

func (r *pgRepo) GetUserProgress(ctx context.Context, learnerID int64) (UserProgress, error) {
	p, err := queryOne(ctx, r.q, func(row pgx.CollectableRow) (UserProgress, error) {
		var p UserProgress
		err := row.Scan(&p.LearnerID, &p.CompletedLessons, &p.CompletedScenes, &p.TotalScore, &p.LastUpdatedAt)
		return p, err
	},
		`SELECT learner_id, completed_lessons, completed_scenes, total_score, last_updated_at
		 FROM user_progress WHERE learner_id = $1`, learnerID)
	if err != nil {
		return p, fmt.Errorf("get user progress: %w", err)
	}
	return p, nil
}

func (r *pgRepo) SaveUserProgress(ctx context.Context, p UserProgress) error {
	_, err := r.exec(ctx,
		`INSERT INTO user_progress (learner_id, completed_lessons, completed_scenes, total_score, last_updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (learner_id) DO UPDATE SET completed_lessons = EXCLUDED.completed_lessons,
		   completed_scenes = EXCLUDED.completed_scenes, total_score = EXCLUDED.total_score,
		   last_updated_at = EXCLUDED.last_updated_at`,
		p.LearnerID, p.CompletedLessons, p.CompletedScenes, p.TotalScore, p.LastUpdatedAt)
	if err != nil {
		return fmt.Errorf("save user progress: %w", err)
	}
	return nil
}

func (r *pgRepo) GrantAchievement(ctx context.Context, ua UserAchievement) (bool, error) {
	tag, err := r.exec(ctx,
		`INSERT INTO user_achievements (learner_id, achievement_id, earned_at) VALUES ($1, $2, $3)
		 ON CONFLICT (learner_id, achievement_id) DO NOTHING`,
		ua.LearnerID, ua.AchievementID, ua.EarnedAt)
	if err != nil {
		return false, fmt.Errorf("grant achievement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgRepo) ListUserAchievements(ctx context.Context, learnerID int64) ([]UserAchievement, error) {
	out, err := queryAll(ctx, r.q, func(row pgx.CollectableRow) (UserAchievement, error) {
		var ua UserAchievement
		err := row.Scan(&ua.LearnerID, &ua.AchievementID, &ua.EarnedAt)
		return ua, err
	},
		`SELECT learner_id, achievement_id, earned_at FROM user_achievements
		 WHERE learner_id = $1 ORDER BY achievement_id`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list user achievements: %w", err)
	}
	return out, nil
}
