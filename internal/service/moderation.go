package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/metrics"

	"github.com/rs/zerolog/log"
)

// ModerationGate decides whether a profile may send right now.
type ModerationGate struct {
	store backend.Store
	Now   func() time.Time
}

func NewModerationGate(store backend.Store) *ModerationGate {
	return &ModerationGate{store: store, Now: time.Now}
}

// Check returns a *ModerationError for a blocked or timed out profile. A
// missing profile has nothing to enforce. Any other lookup failure lets the
// send through and is only logged.
func (g *ModerationGate) Check(ctx context.Context, userID string) error {
	p, err := g.store.Profiles().Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, backend.ErrNotFound) {
			log.Warn().Err(err).Str("user_id", userID).Msg("moderation lookup failed, allowing send")
		}
		return nil
	}
	if p.IsBlocked {
		metrics.ModerationRejectionsTotal.WithLabelValues("blocked").Inc()
		merr := &ModerationError{Blocked: true}
		if p.BlockedReason != nil {
			merr.Reason = *p.BlockedReason
		}
		return merr
	}
	now := g.Now()
	if p.TimedOut(now) {
		metrics.ModerationRejectionsTotal.WithLabelValues("timeout").Inc()
		merr := &ModerationError{Minutes: RemainingMinutes(*p.TimeoutUntil, now)}
		if p.TimeoutReason != nil {
			merr.Reason = *p.TimeoutReason
		}
		return merr
	}
	return nil
}

// RemainingMinutes is the ceiling of the seconds left until, divided by 60.
func RemainingMinutes(until, now time.Time) int {
	secs := until.Sub(now).Seconds()
	if secs <= 0 {
		return 0
	}
	return int(math.Ceil(secs / 60))
}
