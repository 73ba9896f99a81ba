package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Expirer is the part of ConnectionService the sweeper drives.
type Expirer interface {
	ExpireDue(ctx context.Context, limit int) (int, error)
}

// Leaser takes a short Redis lease so only one replica sweeps per tick.
// *redis.Client satisfies it.
type Leaser interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// SweeperConfig controls the background expiry loop.
type SweeperConfig struct {
	Interval time.Duration
	Batch    int
	LeaseKey string
}

// Sweeper periodically expires connections whose stage deadline lapsed.
// Lazy expiry on read and on action covers the gaps between ticks.
type Sweeper struct {
	exp   Expirer
	lease Leaser
	cfg   SweeperConfig
	owner string
	log   *zap.Logger
}

// NewSweeper builds a sweeper.  lease may be nil, in which case every
// replica sweeps on every tick; row locks keep that correct.
func NewSweeper(exp Expirer, lease Leaser, cfg SweeperConfig, log *zap.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.LeaseKey == "" {
		cfg.LeaseKey = "sweep:connections"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{exp: exp, lease: lease, cfg: cfg, owner: uuid.NewString(), log: log}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Tick runs a single sweep if the lease is free.  It reports how many
// connections were expired.
func (s *Sweeper) Tick(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	if s.lease != nil {
		ok, err := s.lease.SetNX(ctx, s.cfg.LeaseKey, s.owner, s.cfg.Interval/2).Result()
		if err != nil {
			s.log.Warn("sweep lease unavailable, sweeping anyway", zap.Error(err))
		} else if !ok {
			return 0
		}
	}
	n, err := s.exp.ExpireDue(ctx, s.cfg.Batch)
	if err != nil {
		s.log.Error("sweep failed", zap.Int("expired", n), zap.Error(err))
	}
	if n > 0 {
		s.log.Info("sweep expired connections", zap.Int("expired", n))
	}
	return n
}
