package lock

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"hostbook/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverLocker prefers the distributed locker and drops to the in-process one while Redis is unreachable.
// A booking row is still rechecked for overlap inside its insert transaction.
type FailoverLocker struct {
	primary   domain.Locker
	fallback  domain.Locker
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverLocker(primary, fallback domain.Locker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (l *FailoverLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.isDown.Load() && time.Since(time.Unix(0, l.lastCheck.Load())) > recoveryInterval {
		l.isDown.Store(false)
		l.logger.Info().Msg("Retrying primary locker")
	}

	if !l.isDown.Load() {
		unlock, err := l.primary.Lock(ctx, key)
		if err == nil {
			return unlock, nil
		}
		if errors.Is(err, ErrLockTimeout) || ctx.Err() != nil {
			return nil, err
		}
		l.logger.Error().Err(err).Str("key", key).Msg("Primary locker failed, falling back to memory")
		l.isDown.Store(true)
		l.lastCheck.Store(time.Now().UnixNano())
	}

	return l.fallback.Lock(ctx, key)
}

// Degraded reports whether the fallback is in use.
func (l *FailoverLocker) Degraded() bool {
	return l.isDown.Load()
}
