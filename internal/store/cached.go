package store

import (
	"context"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru"

	"github.com/p-n-ai/pai-lingo/internal/content"
)

// DefaultContentCacheSize is the number of catalog reads kept by CachedContent.
const DefaultContentCacheSize = 1024

type contentKey struct {
	op string
	id int64
}

// CachedContent is a Store that serves hot catalog reads from an LRU cache.
// Learner state always goes to the underlying store. Catalog writes through
// CachedContent purge the cache; writes made inside WithinTx do not.
type CachedContent struct {
	Store
	cache *lru.Cache
}

// NewCachedContent wraps s with an LRU of the given size.
func NewCachedContent(s Store, size int) (*CachedContent, error) {
	if size <= 0 {
		size = DefaultContentCacheSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating content cache: %w", err)
	}
	return &CachedContent{Store: s, cache: c}, nil
}

func cachedOne[T any](c *CachedContent, key contentKey, load func() (T, error)) (T, error) {
	if v, ok := c.cache.Get(key); ok {
		return v.(T), nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.cache.Add(key, v)
	return v, nil
}

func cachedList[T any](c *CachedContent, key contentKey, load func() ([]T, error)) ([]T, error) {
	v, err := cachedOne(c, key, load)
	return slices.Clone(v), err
}

func (c *CachedContent) GetCourse(ctx context.Context, id int64) (content.Course, error) {
	return cachedOne(c, contentKey{"course", id}, func() (content.Course, error) {
		return c.Store.GetCourse(ctx, id)
	})
}

func (c *CachedContent) GetTopic(ctx context.Context, id int64) (content.Topic, error) {
	return cachedOne(c, contentKey{"topic", id}, func() (content.Topic, error) {
		return c.Store.GetTopic(ctx, id)
	})
}

func (c *CachedContent) GetLesson(ctx context.Context, id int64) (content.Lesson, error) {
	return cachedOne(c, contentKey{"lesson", id}, func() (content.Lesson, error) {
		return c.Store.GetLesson(ctx, id)
	})
}

func (c *CachedContent) ListCourseLessons(ctx context.Context, courseID int64) ([]content.Lesson, error) {
	return cachedList(c, contentKey{"course_lessons", courseID}, func() ([]content.Lesson, error) {
		return c.Store.ListCourseLessons(ctx, courseID)
	})
}

func (c *CachedContent) ListExercises(ctx context.Context, lessonID int64) ([]content.Exercise, error) {
	return cachedList(c, contentKey{"exercises", lessonID}, func() ([]content.Exercise, error) {
		return c.Store.ListExercises(ctx, lessonID)
	})
}

func (c *CachedContent) GetScene(ctx context.Context, id int64) (content.Scene, error) {
	return cachedOne(c, contentKey{"scene", id}, func() (content.Scene, error) {
		return c.Store.GetScene(ctx, id)
	})
}

func (c *CachedContent) ListScenes(ctx context.Context) ([]content.Scene, error) {
	return cachedList(c, contentKey{"scenes", 0}, func() ([]content.Scene, error) {
		return c.Store.ListScenes(ctx)
	})
}

func (c *CachedContent) ListSceneSteps(ctx context.Context, sceneID int64) ([]content.SceneStep, error) {
	return cachedList(c, contentKey{"steps", sceneID}, func() ([]content.SceneStep, error) {
		return c.Store.ListSceneSteps(ctx, sceneID)
	})
}

func (c *CachedContent) ListAchievements(ctx context.Context) ([]Achievement, error) {
	return cachedList(c, contentKey{"achievements", 0}, func() ([]Achievement, error) {
		return c.Store.ListAchievements(ctx)
	})
}

// purgeAfter drops every cached read and passes err through.
func (c *CachedContent) purgeAfter(err error) error {
	c.cache.Purge()
	return err
}

func (c *CachedContent) SaveCourse(ctx context.Context, v content.Course) error {
	return c.purgeAfter(c.Store.SaveCourse(ctx, v))
}

func (c *CachedContent) SaveTopic(ctx context.Context, v content.Topic) error {
	return c.purgeAfter(c.Store.SaveTopic(ctx, v))
}

func (c *CachedContent) SaveLesson(ctx context.Context, v content.Lesson) error {
	return c.purgeAfter(c.Store.SaveLesson(ctx, v))
}

func (c *CachedContent) SaveExercise(ctx context.Context, v content.Exercise) error {
	return c.purgeAfter(c.Store.SaveExercise(ctx, v))
}

func (c *CachedContent) SaveScene(ctx context.Context, v content.Scene) error {
	return c.purgeAfter(c.Store.SaveScene(ctx, v))
}

func (c *CachedContent) SaveSceneStep(ctx context.Context, v content.SceneStep) error {
	return c.purgeAfter(c.Store.SaveSceneStep(ctx, v))
}

func (c *CachedContent) SaveAchievement(ctx context.Context, v Achievement) error {
	return c.purgeAfter(c.Store.SaveAchievement(ctx, v))
}
