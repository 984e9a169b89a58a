package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sells-group/firerisk-cli/internal/config"
)

// Checker runs periodic alert checks. An alert that stays active is sent
// again only after the repeat interval; one that clears and returns is sent
// at once.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	clock     clockwork.Clock

	mu       sync.Mutex
	lastSent map[AlertType]time.Time
}

// NewChecker creates an alert checker. A nil clock uses wall time.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig, clock clockwork.Clock) *Checker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		clock:     clock,
		lastSent:  make(map[AlertType]time.Time),
	}
}

// Run checks once immediately, then on every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	if ctx.Err() != nil {
		return
	}
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)
	c.Check(ctx)

	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.Chan():
			c.Check(ctx)
		}
	}
}

// Check collects one snapshot and evaluates it. It returns every alert
// triggered, including ones held back from the webhook as repeats.
func (c *Checker) Check(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	fresh := c.due(alerts)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	if sent > 0 || c.cfg.WebhookURL == "" {
		c.markSent(fresh)
	}
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_repeated", len(alerts)-len(fresh)),
		zap.Int("alerts_sent", sent),
	)
	return alerts
}

func (c *Checker) repeatAfter() time.Duration {
	if c.cfg.RepeatAfterHours <= 0 {
		return 0
	}
	return time.Duration(c.cfg.RepeatAfterHours) * time.Hour
}

// due returns the alerts not sent within the repeat interval and forgets
// types that are no longer active.
func (c *Checker) due(alerts []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	active := make(map[AlertType]bool, len(alerts))
	var out []Alert
	now := c.clock.Now()
	for _, a := range alerts {
		active[a.Type] = true
		last, ok := c.lastSent[a.Type]
		if ok && c.repeatAfter() > 0 && now.Sub(last) < c.repeatAfter() {
			continue
		}
		out = append(out, a)
	}
	for t := range c.lastSent {
		if !active[t] {
			delete(c.lastSent, t)
		}
	}
	return out
}

func (c *Checker) markSent(alerts []Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	for _, a := range alerts {
		c.lastSent[a.Type] = now
	}
}
