package measurement

import (
	"context"
	"fmt"
	"log/slog"

	"castspc/internal/config"
)

// Source yields the next upstream measurement. FetchNext returns (nil, nil)
// when the upstream has nothing to offer.
type Source interface {
	FetchNext(ctx context.Context) (*Record, error)
	Name() string
	Close() error
}

// NewSource selects the source implementation configured in source.kind.
func NewSource(cfg *config.Config, logger *slog.Logger) (Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	switch cfg.Source.Kind {
	case config.SourceSimulated:
		return NewSimulatedSource(SimulatedOptions{
			FailRatio: cfg.Source.FailRatio,
			Seed:      cfg.Source.Seed,
			MoldCodes: cfg.Source.MoldCodes,
		}), nil
	case config.SourceWebSocket:
		return NewWebSocketSource(cfg.Source.WebSocketURL, cfg.SourceTimeout(), logger), nil
	default:
		return nil, fmt.Errorf("source.kind: unsupported value %q", cfg.Source.Kind)
	}
}
