package repositories

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/MyRustyCage/pp-image-importer/config"
	"github.com/MyRustyCage/pp-image-importer/domain"
)

// Strategy matches services.FetchStrategy.
type Strategy interface {
	Kind() domain.StrategyKind
	Fetch(ctx context.Context, url string) (*domain.FetchResponse, error)
}

// strategyBuild collects what the factories produce besides the strategy itself.
type strategyBuild struct {
	cfg     config.FetchConfig
	logger  *zap.Logger
	closers []func() error
}

// NewStrategy is the factory signature of the registry.
type NewStrategy func(b *strategyBuild) Strategy

// StrategyRegistry maps configured names to factories.
var StrategyRegistry = map[domain.StrategyKind]NewStrategy{
	domain.StrategyDirect: func(b *strategyBuild) Strategy {
		return NewDirectFetch(b.cfg.Timeout, b.cfg.Origin)
	},
	domain.StrategyProxy: func(b *strategyBuild) Strategy {
		return NewProxyFetch(b.cfg.Timeout, b.cfg.ProxyEndpoint)
	},
	domain.StrategyCanvas: func(b *strategyBuild) Strategy {
		if b.cfg.Rasterizer == config.RasterizerBrowser {
			browser := NewBrowserRasterizer(b.cfg.BrowserBin, b.cfg.Timeout, b.logger)
			b.closers = append(b.closers, browser.Close)
			return NewCanvasDecodeFetch(browser)
		}
		return NewCanvasDecodeFetch(NewImageRasterizer(b.cfg.Timeout, b.cfg.Origin, b.cfg.MaxImageBytes))
	},
	domain.StrategyLowLevel: func(b *strategyBuild) Strategy {
		return NewLowLevelFetch(b.cfg.LowLevelTimeout)
	},
}

// NewStrategies builds the fetch strategies named in names, in that order. The returned
// func releases resources held by the strategies (the headless browser).
func NewStrategies(names []string, cfg config.FetchConfig, logger *zap.Logger) ([]Strategy, func() error, error) {
	b := &strategyBuild{cfg: cfg, logger: logger}

	seen := make(map[domain.StrategyKind]bool, len(names))
	strategies := make([]Strategy, 0, len(names))
	for _, name := range names {
		kind := domain.StrategyKind(name)
		factory, ok := StrategyRegistry[kind]
		if !ok {
			return nil, nil, fmt.Errorf("unknown fetch strategy %q", name)
		}
		if seen[kind] {
			return nil, nil, fmt.Errorf("fetch strategy %q listed twice", name)
		}
		seen[kind] = true
		strategies = append(strategies, factory(b))
	}

	closeAll := func() error {
		var err error
		for _, c := range b.closers {
			err = multierr.Append(err, c())
		}
		return err
	}
	return strategies, closeAll, nil
}
