package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/dyluth/songgrid/pkg/grid"
)

// Error is the error class for rate-limit store failures.
var Error = errs.Class("admission")

// DefaultOperationTimeout bounds each Redis round trip made by the gate.
const DefaultOperationTimeout = 5 * time.Second

// Decision is the outcome of CheckAndReserve.
type Decision struct {
	Allowed   bool
	Remaining time.Duration // Whole seconds left on the existing record when denied
}

// Gate decides whether a client may write right now and arms the cooldown
// window when it may. Records live in Redis so the decision holds across
// restarts and across server instances.
// The gate is safe for concurrent use.
type Gate struct {
	rdb       redis.Cmdable
	namespace string
	cooldown  time.Duration
	timeout   time.Duration
	log       *zap.Logger
}

// GateOption tunes a Gate.
type GateOption func(*Gate)

// WithOperationTimeout bounds each Redis call. Non-positive values keep the default.
// The client needs ContextTimeoutEnabled for the deadline to cut socket reads short.
func WithOperationTimeout(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGate creates a gate backed by rdb.
//
// Parameters:
//   - rdb: Redis client shared by all request handlers
//   - namespace: optional key prefix (may be empty)
//   - cooldown: length of the window armed by each admitted write, at least one second
//
// Returns an error if cooldown is shorter than a second.
func NewGate(rdb redis.Cmdable, namespace string, cooldown time.Duration, log *zap.Logger, opts ...GateOption) (*Gate, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if cooldown < time.Second {
		return nil, fmt.Errorf("cooldown must be at least 1s: %v", cooldown)
	}
	if log == nil {
		log = zap.NewNop()
	}
	g := &Gate{
		rdb:       rdb,
		namespace: namespace,
		cooldown:  cooldown,
		timeout:   DefaultOperationTimeout,
		log:       log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Cooldown returns the configured window length.
func (g *Gate) Cooldown() time.Duration {
	return g.cooldown
}

// Ping verifies Redis connectivity. Used by the health check.
func (g *Gate) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return Error.Wrap(g.rdb.Ping(ctx).Err())
}

// CheckAndReserve admits identity if it holds no live record and, in the same
// Redis command, writes a new record that expires after the cooldown. Two
// concurrent calls for one identity can never both be admitted.
//
// Redis failures are returned wrapping grid.ErrStoreUnavailable; the gate never
// guesses a decision it could not make.
func (g *Gate) CheckAndReserve(ctx context.Context, identity string) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	key := CooldownKey(g.namespace, identity)
	reserved, err := g.rdb.SetNX(ctx, key, cooldownValue, g.cooldown).Result()
	if err != nil {
		return Decision{}, Error.Wrap(fmt.Errorf("%w: failed to reserve cooldown: %v", grid.ErrStoreUnavailable, err))
	}
	if reserved {
		g.log.Debug("admitted", zap.String("identity", identity), zap.Duration("cooldown", g.cooldown))
		return Decision{Allowed: true}, nil
	}

	ttl, err := g.rdb.TTL(ctx, key).Result()
	if err != nil {
		return Decision{}, Error.Wrap(fmt.Errorf("%w: failed to read cooldown ttl: %v", grid.ErrStoreUnavailable, err))
	}

	var remaining time.Duration
	switch {
	case ttl == -1:
		// A record without expiry would deny forever; re-arm it.
		if err := g.rdb.Expire(ctx, key, g.cooldown).Err(); err != nil {
			return Decision{}, Error.Wrap(fmt.Errorf("%w: failed to re-arm cooldown: %v", grid.ErrStoreUnavailable, err))
		}
		remaining = g.cooldown
	case ttl <= 0:
		// Expired between SET and TTL. The reservation was not made, so deny
		// with the smallest reportable wait.
		remaining = time.Second
	default:
		remaining = ceilSeconds(ttl)
		if remaining > g.cooldown {
			remaining = g.cooldown
		}
	}

	g.log.Debug("denied", zap.String("identity", identity), zap.Duration("remaining", remaining))
	return Decision{Allowed: false, Remaining: remaining}, nil
}

// RemainingTime reports how long identity must still wait, rounded up to
// whole seconds. It never denies anything. Missing records and records without
// an expiry both report 0.
func (g *Gate) RemainingTime(ctx context.Context, identity string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ttl, err := g.rdb.TTL(ctx, CooldownKey(g.namespace, identity)).Result()
	if err != nil {
		return 0, Error.Wrap(fmt.Errorf("%w: failed to read cooldown ttl: %v", grid.ErrStoreUnavailable, err))
	}
	if ttl <= 0 {
		return 0, nil
	}
	return ceilSeconds(ttl), nil
}

// Release deletes the record for identity. Operator tooling only; the edit
// path never releases a reservation.
// Returns true if a record existed.
func (g *Gate) Release(ctx context.Context, identity string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	n, err := g.rdb.Del(ctx, CooldownKey(g.namespace, identity)).Result()
	if err != nil {
		return false, Error.Wrap(fmt.Errorf("%w: failed to release cooldown: %v", grid.ErrStoreUnavailable, err))
	}
	return n > 0, nil
}

func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}
