package devin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const DefaultPollInterval = 5 * time.Second

var ErrPollTimeout = errors.New("session did not reach a terminal state before the timeout")

type SessionGetter interface {
	GetSession(ctx context.Context, id string) (SessionDetails, error)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Poller waits for a session to reach a terminal state. It issues exactly one
// status request per iteration and sleeps Interval between non-terminal ones.
type Poller struct {
	Sessions SessionGetter
	Interval time.Duration
	// Timeout bounds the whole wait. Zero means wait until ctx is done.
	Timeout time.Duration
	Sleep   SleepFunc
	Log     *slog.Logger
}

func NewPoller(sessions SessionGetter, interval, timeout time.Duration, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		Sessions: sessions,
		Interval: interval,
		Timeout:  timeout,
		Sleep:    sleepContext,
		Log:      log,
	}
}

func (p *Poller) Wait(ctx context.Context, id string) (SessionDetails, error) {
	parent := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	for iter := 1; ; iter++ {
		details, err := p.Sessions.GetSession(ctx, id)
		if err != nil {
			return SessionDetails{}, p.wrap(parent, ctx, id, fmt.Errorf("poll session %s: %w", id, err))
		}

		if details.Terminal() {
			p.Log.Info("devin session finished", "session", id, "status", details.StatusEnum, "polls", iter)
			return details, nil
		}
		p.Log.Debug("devin session still running", "session", id, "status", details.StatusEnum, "polls", iter)

		if err := p.Sleep(ctx, p.Interval); err != nil {
			return SessionDetails{}, p.wrap(parent, ctx, id, err)
		}
	}
}

// wrap turns an expiry of the poll deadline into ErrPollTimeout while leaving
// cancellation of the caller's context visible as such.
func (p *Poller) wrap(parent, ctx context.Context, id string, err error) error {
	if parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("session %s after %s: %w", id, p.Timeout, ErrPollTimeout)
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
