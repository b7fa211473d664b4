// Package engine drives follower accounts to mirror the master's book. Each
// tick it reads the latest published snapshot, decides whether a sync is due
// (content change or periodic timer), and reconciles every follower in turn:
// open what the master opened, track stop/target changes, close what the
// master closed, and sweep anything the master never sanctioned.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/copier/config"
	"github.com/rustyeddy/copier/guard"
	"github.com/rustyeddy/copier/ledger"
	"github.com/rustyeddy/copier/metrics"
	"github.com/rustyeddy/copier/pkg/id"
	"github.com/rustyeddy/copier/snapshot"
	"github.com/rustyeddy/copier/terminal"
)

// Engine reconciles follower accounts against published master snapshots.
// All convergence bookkeeping (last accepted hash, last sync time,
// blacklist) lives on the instance, so independent engines can run in one
// process without interference.
type Engine struct {
	cfg    *config.Config
	gw     terminal.Gateway
	ledger ledger.Ledger
	store  *snapshot.Store
	guard  *guard.Guard
	clock  func() time.Time

	lastHash     string
	lastSyncTime time.Time
	blacklist    map[int64]bool
}

// New builds an engine from loaded configuration and its collaborators.
func New(cfg *config.Config, gw terminal.Gateway, led ledger.Ledger, store *snapshot.Store) *Engine {
	return &Engine{
		cfg:       cfg,
		gw:        gw,
		ledger:    led,
		store:     store,
		guard:     guard.New(cfg.GuardLimits(), cfg.Symbols.Overrides),
		clock:     time.Now,
		blacklist: make(map[int64]bool),
	}
}

// Run ticks the reconciliation loop until the context is cancelled, then
// disconnects the gateway. The tick interval carries a 100ms floor.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.cfg.TickInterval()
	logrus.WithFields(logrus.Fields{
		"tick_interval": interval,
		"followers":     len(e.cfg.Followers),
	}).Info("reconciliation engine started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("shutdown signal received, disconnecting")
			return e.gw.Shutdown(context.Background())
		case <-ticker.C:
			e.RunCycle(ctx)
		}
	}
}

// RunCycle performs one read-detect-sync pass. Transport problems and
// invalid snapshots idle the tick; they are never fatal.
func (e *Engine) RunCycle(ctx context.Context) {
	snap, hash, err := e.store.Read()
	if err != nil {
		// Exhausted read retries: no update this tick.
		logrus.WithError(err).Debug("snapshot unavailable, skipping tick")
		return
	}

	if !snap.Valid() {
		logrus.Warn("read empty/invalid snapshot (server time zero), skipping sync to prevent mass close")
		return
	}

	changed := hash != e.lastHash
	timerDue := e.clock().Sub(e.lastSyncTime) > e.cfg.SyncInterval()
	if !changed && !timerDue {
		return
	}

	trigger := "timer"
	if changed {
		trigger = "change"
		e.lastHash = hash
		logrus.Info("sync triggered by snapshot change")
	} else {
		logrus.Debug("sync triggered by timer")
	}
	metrics.SyncCycles.WithLabelValues(trigger).Inc()

	e.syncAll(ctx, snap)
	e.lastSyncTime = e.clock()
}

// syncAll reconciles every follower in fixed config order. One follower's
// failure is logged and isolated; the rest still run in the same cycle.
func (e *Engine) syncAll(ctx context.Context, snap snapshot.Snapshot) {
	cycle := id.New()
	results := make([]string, 0, len(e.cfg.Followers))

	for i, follower := range e.cfg.Followers {
		log := logrus.WithFields(logrus.Fields{
			"cycle": cycle,
			"login": follower.Login,
		})

		if e.blacklist[follower.Login] {
			results = append(results, fmt.Sprintf("%d:SKIPPED(blacklist)", follower.Login))
			continue
		}

		log.WithField("follower", fmt.Sprintf("%d/%d", i+1, len(e.cfg.Followers))).Debug("processing follower")
		if err := e.syncFollower(ctx, follower, snap); err != nil {
			log.WithError(err).Error("follower sync failed")
			metrics.SyncErrors.Inc()
			results = append(results, fmt.Sprintf("%d:FAIL", follower.Login))
			continue
		}
		results = append(results, fmt.Sprintf("%d:OK", follower.Login))
	}

	logrus.WithField("cycle", cycle).Infof("cycle complete: %s", strings.Join(results, ", "))
}

// commentFor encodes the originating master ticket into an order comment.
func (e *Engine) commentFor(masterTicket int64) string {
	return e.cfg.Copy.CommentPrefix + strconv.FormatInt(masterTicket, 10)
}

// parseComment recovers the master ticket from a copier order comment.
func (e *Engine) parseComment(comment string) (int64, error) {
	rest, ok := strings.CutPrefix(comment, e.cfg.Copy.CommentPrefix)
	if !ok {
		return 0, fmt.Errorf("comment %q lacks prefix %q", comment, e.cfg.Copy.CommentPrefix)
	}
	ticket, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("comment %q has no ticket: %w", comment, err)
	}
	return ticket, nil
}
