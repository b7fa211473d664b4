package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/copier/metrics"
	"github.com/rustyeddy/copier/terminal"
)

// Publisher samples the master account's live positions and pending orders
// and publishes them to the transport at a fixed, high-frequency cadence.
type Publisher struct {
	gw       terminal.Gateway
	store    *Store
	interval time.Duration
	clock    func() time.Time

	lastCount int // last published active-item total, -1 until first publish
}

// NewPublisher builds a publisher over a connected-or-connectable gateway.
func NewPublisher(gw terminal.Gateway, store *Store, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &Publisher{
		gw:        gw,
		store:     store,
		interval:  interval,
		clock:     time.Now,
		lastCount: -1,
	}
}

// Run connects to the master account and publishes until the context is
// cancelled. A connect failure is fatal; everything after that is retried
// on the next tick.
func (p *Publisher) Run(ctx context.Context, creds terminal.Credentials) error {
	if err := p.gw.Connect(ctx, creds); err != nil {
		return fmt.Errorf("connect master %d: %w", creds.Login, err)
	}
	logrus.WithField("login", creds.Login).Info("connected to master, monitoring positions")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("publisher stopping")
			return p.gw.Shutdown(context.Background())
		case <-ticker.C:
			p.publishOnce(ctx)
		}
	}
}

// publishOnce reads the master book and writes one snapshot. A failed read
// of either list skips the whole publish: a partial snapshot must never
// reach the transport.
func (p *Publisher) publishOnce(ctx context.Context) {
	positions, err := p.gw.Positions(ctx)
	if err != nil {
		logrus.WithError(err).Error("failed to get master positions")
		return
	}
	orders, err := p.gw.PendingOrders(ctx)
	if err != nil {
		logrus.WithError(err).Error("failed to get master pending orders")
		return
	}

	// Log only on count changes to bound log volume at a 10ms cadence.
	total := len(positions) + len(orders)
	if total != p.lastCount {
		logrus.WithFields(logrus.Fields{
			"positions": len(positions),
			"pending":   len(orders),
		}).Info("master state change")
		p.lastCount = total
	}

	snap := Capture(positions, orders, p.clock())
	if err := p.store.Write(snap); err != nil {
		// Transient rename contention; the next tick publishes fresh state.
		logrus.WithError(err).Debug("snapshot publish skipped")
		return
	}

	metrics.SnapshotPublishes.Inc()
	metrics.ActiveItems.Set(float64(total))
}
