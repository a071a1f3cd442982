package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rahulunni73/authclient/pkg/authclient"
)

// DefaultKeeperLead is used when NewKeeper is given a non-positive lead.
const DefaultKeeperLead = 2 * time.Minute

// session is the part of authclient.TokenSession the keeper drives.
type session interface {
	Info(ctx context.Context) (authclient.TokenInfo, error)
	Refresh(ctx context.Context) (string, error)
}

// Keeper periodically refreshes the access token before it expires, so
// foreground requests rarely wait on a refresh.
type Keeper struct {
	Session  session
	Logger   *slog.Logger
	Interval time.Duration
	Lead     time.Duration

	now      func() time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewKeeper creates a keeper for s. If interval is 0 or negative, defaults
// to one minute.
func NewKeeper(s session, logger *slog.Logger, interval, lead time.Duration) *Keeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if lead <= 0 {
		lead = DefaultKeeperLead
	}

	return &Keeper{
		Session:  s,
		Logger:   logger,
		Interval: interval,
		Lead:     lead,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (k *Keeper) Start() {
	go k.run()
	k.Logger.Info("token keeper started", "interval", k.Interval, "lead", k.Lead)
}

// Stop shuts down the worker and waits for an in-progress check to finish.
// Calls after the first are no-ops. Stop must follow Start.
func (k *Keeper) Stop() {
	k.stopOnce.Do(func() {
		close(k.stopCh)
		<-k.doneCh
		k.Logger.Info("token keeper stopped")
	})
}

func (k *Keeper) run() {
	defer close(k.doneCh)

	ticker := time.NewTicker(k.Interval)
	defer ticker.Stop()

	k.check()

	for {
		select {
		case <-ticker.C:
			k.check()
		case <-k.stopCh:
			return
		}
	}
}

// check refreshes when the access token expires within Lead. It reports
// whether a refresh was attempted.
func (k *Keeper) check() bool {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-k.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	info, err := k.Session.Info(ctx)
	if err != nil {
		k.Logger.Error("failed to read session", "error", err)
		return false
	}
	if !info.HasRefreshToken {
		return false
	}
	if info.ExpirationDate != nil && info.ExpirationDate.Sub(k.now()) > k.Lead {
		return false
	}

	if _, err := k.Session.Refresh(ctx); err != nil {
		k.Logger.Warn("proactive refresh failed", "error", err)
		return true
	}
	k.Logger.Debug("access token refreshed ahead of expiry")
	return true
}
