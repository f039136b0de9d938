package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/market-chat/internal/model"
	"github.com/d60-Lab/market-chat/pkg/logger"
)

// DirectoryCache 用户/商品摘要的读穿缓存：Redis MGET -> 数据库 IN 批量补齐 -> 回写 Redis。
// 只缓存命中的记录，不存在的 id 每次都会回源。
type DirectoryCache struct {
	cache  *redis.Client
	prefix string
	ttl    time.Duration

	bulkLoads atomic.Int64
}

func NewDirectoryCache(cache *redis.Client, prefix string, ttl time.Duration) *DirectoryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DirectoryCache{cache: cache, prefix: prefix, ttl: ttl}
}

// BulkLoads 回源数据库的批量查询次数
func (c *DirectoryCache) BulkLoads() int64 { return c.bulkLoads.Load() }

func (c *DirectoryCache) key(kind, id string) string {
	if c.prefix == "" {
		return fmt.Sprintf("%s:%s", kind, id)
	}
	return fmt.Sprintf("%s:%s:%s", c.prefix, kind, id)
}

// Invalidate 删除某条摘要，资料变更后调用
func (c *DirectoryCache) Invalidate(ctx context.Context, kind, id string) error {
	return c.cache.Del(ctx, c.key(kind, id)).Err()
}

func loadThrough[T any](ctx context.Context, c *DirectoryCache, kind string, ids []string,
	load func(context.Context, []string) (map[string]*T, error)) (map[string]*T, error) {
	out := make(map[string]*T, len(ids))
	ids = dedup(ids)
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(kind, id)
	}
	if vals, err := c.cache.MGet(ctx, keys...).Result(); err == nil {
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue
			}
			var item T
			if uErr := json.Unmarshal([]byte(str), &item); uErr == nil {
				out[ids[i]] = &item
			}
		}
	} else {
		logger.Warn("directory cache mget failed", zap.String("kind", kind), zap.Error(err))
	}

	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	c.bulkLoads.Add(1)
	loaded, err := load(ctx, missing)
	if err != nil {
		return nil, err
	}
	pipe := c.cache.Pipeline()
	for id, item := range loaded {
		out[id] = item
		if payload, err := json.Marshal(item); err == nil {
			pipe.Set(ctx, c.key(kind, id), payload, c.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		logger.Warn("directory cache write failed", zap.String("kind", kind), zap.Error(err))
	}
	return out, nil
}

func dedup(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	res := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		res = append(res, id)
	}
	return res
}

// cachedUserRepository 覆盖摘要查询，其余方法直接走底层仓库
type cachedUserRepository struct {
	UserRepository
	c *DirectoryCache
}

func NewCachedUserRepository(inner UserRepository, c *DirectoryCache) UserRepository {
	return &cachedUserRepository{UserRepository: inner, c: c}
}

func (r *cachedUserRepository) Users(ctx context.Context, ids []string) (map[string]*model.UserSummary, error) {
	return loadThrough(ctx, r.c, "user", ids, r.UserRepository.Users)
}

// UpdateRole 角色出现在摘要里，写库后同步失效缓存
func (r *cachedUserRepository) UpdateRole(ctx context.Context, id, role string) error {
	if err := r.UserRepository.UpdateRole(ctx, id, role); err != nil {
		return err
	}
	if err := r.c.Invalidate(ctx, "user", id); err != nil {
		logger.Warn("directory cache invalidate failed", zap.String("user", id), zap.Error(err))
	}
	return nil
}

func (r *cachedUserRepository) User(ctx context.Context, id string) (*model.UserSummary, error) {
	res, err := r.Users(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	u, ok := res[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

type cachedProductRepository struct {
	ProductRepository
	c *DirectoryCache
}

func NewCachedProductRepository(inner ProductRepository, c *DirectoryCache) ProductRepository {
	return &cachedProductRepository{ProductRepository: inner, c: c}
}

func (r *cachedProductRepository) Products(ctx context.Context, ids []string) (map[string]*model.ProductSummary, error) {
	return loadThrough(ctx, r.c, "product", ids, r.ProductRepository.Products)
}

func (r *cachedProductRepository) Product(ctx context.Context, id string) (*model.ProductSummary, error) {
	res, err := r.Products(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	p, ok := res[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}
