package pipeline

import (
	"context"
	"fmt"

	"github.com/autofund-ai/autofund/internal/analysis"
	"github.com/autofund-ai/autofund/internal/extract"
	"github.com/autofund-ai/autofund/internal/narrative"
	"github.com/autofund-ai/autofund/internal/spreadsheet"
	"github.com/autofund-ai/autofund/pkg/cache"
	"github.com/autofund-ai/autofund/pkg/config"
	"github.com/autofund-ai/autofund/pkg/llm"
	"go.uber.org/zap"
)

// Resources 由配置构建的 Runner 及其需要关闭的资源
type Resources struct {
	Runner *Runner
	Cache  *cache.RedisCache
}

// Close 关闭资源
func (r *Resources) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// NewFromConfig 按配置组装抽取器、叙述生成器与输出适配器
//
// storage.redis.address 为空时不启用抽取缓存；Redis 不可达同样降级为无缓存运行
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Resources, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	extractionClient, err := llm.NewClient(ctx, cfg.LLM, cfg.LLM.Extraction, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction LLM client: %w", err)
	}
	narrativeClient, err := llm.NewClient(ctx, cfg.LLM, cfg.LLM.Narrative, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create narrative LLM client: %w", err)
	}

	res := &Resources{}
	var extractor extract.Extractor = extract.NewLLMExtractor(extractionClient, logger)
	if cfg.Storage.Redis.Address != "" {
		redisCache, err := cache.NewRedisCache(cfg.Storage.Redis)
		if err != nil {
			logger.Warn("Redis unavailable, extraction cache disabled", zap.Error(err))
		} else {
			res.Cache = redisCache
			extractor = extract.NewCachedExtractor(extractor, redisCache, cfg.Storage.Redis.ExtractionTTL, logger)
		}
	}

	lang := analysis.Language(cfg.Analysis.Language)
	generator := narrative.NewGenerator(narrativeClient, logger,
		narrative.WithLanguage(lang),
		narrative.WithLimits(cfg.Analysis.MaxItems, cfg.Analysis.NarrativeMaxWords))
	assembler := analysis.NewAssembler(generator, logger,
		analysis.WithTimeout(cfg.Analysis.NarrativeTimeout),
		analysis.WithLimits(cfg.Analysis.MaxItems, cfg.Analysis.NarrativeMaxWords),
		analysis.WithLanguage(lang))

	sheets, err := spreadsheet.NewWriter(cfg.Output.TemplatePath, cfg.Output.TemplateVersion, logger)
	if err != nil {
		_ = res.Close()
		return nil, fmt.Errorf("failed to create spreadsheet writer: %w", err)
	}

	res.Runner = NewRunner(extractor, assembler, sheets, cfg.Output.Dir, logger)
	return res, nil
}
