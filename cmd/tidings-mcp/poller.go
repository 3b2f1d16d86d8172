package main

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matthewjhunter/tidings"
)

// poller runs listing checks in the background and serializes them with
// on-demand checks from the articles_check tool.
type poller struct {
	engine   *tidings.Engine
	interval time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	done chan struct{}
}

func newPoller(engine *tidings.Engine, interval time.Duration, logger *zap.Logger) *poller {
	return &poller{
		engine:   engine,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// start launches the background poll loop. It polls immediately, then on
// each tick of the configured interval.
func (p *poller) start(ctx context.Context) {
	go p.loop(ctx)
	p.logger.Info("poller started", zap.Duration("interval", p.interval))
}

// stop signals the poll loop to exit.
func (p *poller) stop() {
	close(p.done)
	p.logger.Info("poller stopped")
}

// poll runs one check followed by a date backfill.
func (p *poller) poll(ctx context.Context) (*tidings.CheckResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result, err := p.engine.CheckForNew(ctx)
	if err != nil {
		return nil, err
	}

	if len(result.Inserted) > 0 {
		backfill, err := p.engine.Backfill(ctx)
		if err != nil {
			p.logger.Warn("backfill failed", zap.Error(err))
		} else {
			p.logger.Info("backfilled dates", zap.Int("updated", backfill.Updated))
		}
	}

	p.logger.Info("polled listing",
		zap.String("status", string(result.Status)),
		zap.Int("found", result.Found),
		zap.Int("inserted", len(result.Inserted)))
	return result, nil
}

func (p *poller) loop(ctx context.Context) {
	if _, err := p.poll(ctx); err != nil {
		p.logger.Error("initial poll failed", zap.Error(err))
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.poll(ctx); err != nil {
				p.logger.Error("poll failed", zap.Error(err))
			}
		}
	}
}
