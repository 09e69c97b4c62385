// Пакет service — прогон проверки аккаунта и его опоры:
// пагинатор бейджей, кэш ответов платформы, приёмники событий, мониторинг зависимостей.
//
// CachedSource — LRU-кэш сырых ответов платформы с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/rbxverifier/internal/domain/model"
	"github.com/bigkaa/rbxverifier/internal/platform"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rv_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш ответов платформы.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rv_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша ответов платформы.",
	})
)

// Platform — данные платформы, нужные прогону.
// Реализуется platform.Client и CachedSource.
type Platform interface {
	BadgePager
	ResolveUserID(ctx context.Context, username string) (int64, error)
	Profile(ctx context.Context, userID int64) (model.Profile, error)
	FriendCount(ctx context.Context, userID int64) (int, error)
	Groups(ctx context.Context, userID int64) ([]model.GroupMembership, error)
}

// CachedSource — кэширующая обёртка над Platform.
// Кэшируются только успешные ответы; ошибки всегда уходят вызывающему.
// Каждый экземпляр сервиса имеет собственный in-memory кэш.
type CachedSource struct {
	next  Platform
	cache *expirable.LRU[string, any]
}

// NewCachedSource создаёт кэш с указанным максимальным размером и TTL.
func NewCachedSource(next Platform, maxSize int, ttl time.Duration) *CachedSource {
	return &CachedSource{
		next:  next,
		cache: expirable.NewLRU[string, any](maxSize, nil, ttl),
	}
}

// Len возвращает количество записей в кэше.
func (c *CachedSource) Len() int {
	return c.cache.Len()
}

// ResolveUserID кэшируется по логину как есть, без нормализации регистра.
func (c *CachedSource) ResolveUserID(ctx context.Context, username string) (int64, error) {
	return cached(c, "resolve:"+username, func() (int64, error) {
		return c.next.ResolveUserID(ctx, username)
	})
}

// Profile возвращает профиль из кэша или платформы.
func (c *CachedSource) Profile(ctx context.Context, userID int64) (model.Profile, error) {
	return cached(c, fmt.Sprintf("profile:%d", userID), func() (model.Profile, error) {
		return c.next.Profile(ctx, userID)
	})
}

// FriendCount возвращает число друзей из кэша или платформы.
func (c *CachedSource) FriendCount(ctx context.Context, userID int64) (int, error) {
	return cached(c, fmt.Sprintf("friends:%d", userID), func() (int, error) {
		return c.next.FriendCount(ctx, userID)
	})
}

// Groups возвращает членства в группах. Срез из кэша общий для всех прогонов,
// поэтому наружу отдаётся копия.
func (c *CachedSource) Groups(ctx context.Context, userID int64) ([]model.GroupMembership, error) {
	groups, err := cached(c, fmt.Sprintf("groups:%d", userID), func() ([]model.GroupMembership, error) {
		return c.next.Groups(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return append([]model.GroupMembership(nil), groups...), nil
}

// BadgePage кэширует страницы по (пользователь, порядок, курсор, размер).
func (c *CachedSource) BadgePage(ctx context.Context, userID int64, limit int, order platform.SortOrder, cursor string) (platform.BadgePage, error) {
	key := fmt.Sprintf("badges:%d:%s:%d:%s", userID, order, limit, cursor)
	page, err := cached(c, key, func() (platform.BadgePage, error) {
		return c.next.BadgePage(ctx, userID, limit, order, cursor)
	})
	if err != nil {
		return platform.BadgePage{}, err
	}
	page.Items = append([]model.Badge(nil), page.Items...)
	return page, nil
}

// cached возвращает значение по ключу или загружает его через load.
// Обновляет Prometheus-метрики hit/miss.
func cached[T any](c *CachedSource, key string, load func() (T, error)) (T, error) {
	if val, ok := c.cache.Get(key); ok {
		if typed, ok := val.(T); ok {
			cacheHitsTotal.Inc()
			return typed, nil
		}
	}
	cacheMissesTotal.Inc()

	val, err := load()
	if err != nil {
		return val, err
	}
	c.cache.Add(key, val)
	return val, nil
}
