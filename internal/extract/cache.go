package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/autofund-ai/autofund/internal/document"
	"github.com/autofund-ai/autofund/pkg/jsonx"
	"github.com/autofund-ai/autofund/pkg/metrics"
	"go.uber.org/zap"
)

// DefaultCacheTTL 抽取结果缓存时长
const DefaultCacheTTL = 24 * time.Hour

// Cache 键值缓存，*cache.RedisCache 实现该接口
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CachedExtractor 按文档指纹缓存抽取结果
type CachedExtractor struct {
	next   Extractor
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedExtractor 包装抽取器，ttl 为 0 时使用默认值
func NewCachedExtractor(next Extractor, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedExtractor {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedExtractor{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "extraction_cache")),
	}
}

// CacheKey 文档对应的缓存键
func CacheKey(doc []byte) string {
	return fmt.Sprintf("ies:extraction:%s", document.Fingerprint(doc))
}

// Extract 缓存不可用时直接调用下层抽取器
func (c *CachedExtractor) Extract(ctx context.Context, doc []byte) (map[string]interface{}, error) {
	key := CacheKey(doc)

	// 1. 检查缓存
	cached, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheOperations.WithLabelValues("get", "error").Inc()
		c.logger.Warn("Extraction cache read failed", zap.Error(err))
	case cached != "":
		if data, err := jsonx.DecodeObject([]byte(cached)); err == nil {
			metrics.CacheOperations.WithLabelValues("get", "hit").Inc()
			c.logger.Info("Cache hit for extraction", zap.String("key", key))
			return data, nil
		}
		metrics.CacheOperations.WithLabelValues("get", "error").Inc()
		c.logger.Warn("Discarding corrupt cache entry", zap.String("key", key))
	default:
		metrics.CacheOperations.WithLabelValues("get", "miss").Inc()
	}

	// 2. 抽取
	data, err := c.next.Extract(ctx, doc)
	if err != nil {
		return nil, err
	}

	// 3. 写入缓存
	encoded, err := json.Marshal(data)
	if err == nil {
		err = c.cache.Set(ctx, key, string(encoded), c.ttl)
	}
	if err != nil {
		metrics.CacheOperations.WithLabelValues("set", "error").Inc()
		c.logger.Warn("Failed to cache extraction", zap.Error(err))
	} else {
		metrics.CacheOperations.WithLabelValues("set", "success").Inc()
	}
	return data, nil
}

// Forget 删除文档的缓存结果，用于校验失败的抽取
func (c *CachedExtractor) Forget(ctx context.Context, doc []byte) error {
	if err := c.cache.Delete(ctx, CacheKey(doc)); err != nil {
		metrics.CacheOperations.WithLabelValues("delete", "error").Inc()
		return err
	}
	metrics.CacheOperations.WithLabelValues("delete", "success").Inc()
	return nil
}
