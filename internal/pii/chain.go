package pii

import (
	"context"

	"github.com/caresight/docguard/internal/logger"
	"go.uber.org/zap"
)

// FallbackChain composes a primary detector with a fallback. If the primary
// fails or its deadline expires the chain degrades to the fallback with a
// logged warning; a detection failure is never surfaced to the request.
type FallbackChain struct {
	primary  Detector
	fallback Detector
	logger   *logger.Logger
}

// NewFallbackChain builds a chain. The fallback must be a detector that cannot
// fail (in practice the pattern detector); primary may be nil, in which case
// the chain is just the fallback.
func NewFallbackChain(primary, fallback Detector, log *logger.Logger) *FallbackChain {
	return &FallbackChain{
		primary:  primary,
		fallback: fallback,
		logger:   log,
	}
}

// Name identifies the chain by its active primary.
func (c *FallbackChain) Name() string {
	if c.primary != nil {
		return c.primary.Name() + "+" + c.fallback.Name()
	}
	return c.fallback.Name()
}

// Detect runs the primary detector and falls back on any error. The fallback
// result is authoritative in the degraded case; partial primary output is
// discarded rather than merged.
func (c *FallbackChain) Detect(ctx context.Context, text string) ([]Detection, error) {
	if c.primary != nil {
		detections, err := c.primary.Detect(ctx, text)
		if err == nil {
			return detections, nil
		}
		c.logger.Warn("Primary detector failed, falling back",
			zap.String("primary", c.primary.Name()),
			zap.String("fallback", c.fallback.Name()),
			zap.Error(err),
		)
	}
	return c.fallback.Detect(ctx, text)
}
