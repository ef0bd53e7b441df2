// Package controller implements the EC2 → DNS reconciliation pipeline: it
// resolves instances into intents, decides one change per (instance, zone)
// pair and applies or reports the resulting change set.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bkero/ec2-route53-sync/pkg/plan"
	"github.com/bkero/ec2-route53-sync/pkg/provider"
	"github.com/bkero/ec2-route53-sync/pkg/source"
)

// Prometheus metrics registered on the default registry.
var (
	reconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ec2_route53_sync_reconciliations_total",
		Help: "Total number of reconciliation passes by result.",
	}, []string{"result"})

	reconciliationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ec2_route53_sync_reconciliation_duration_seconds",
		Help:    "Duration of reconciliation passes in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ec2_route53_sync_decisions_total",
		Help: "Total number of (instance, zone) decisions by action.",
	}, []string{"action"})

	dnsOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ec2_route53_sync_dns_operations_total",
		Help: "Total number of DNS operations by type and result.",
	}, []string{"op", "result"})

	instancesResolved = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ec2_route53_sync_instances_resolved",
		Help: "Number of tagged instances resolved by the last reconciliation pass.",
	})
)

// DefaultConcurrency bounds the number of in-flight DNS calls per pass.
const DefaultConcurrency = 16

// Config holds controller tuning parameters.
type Config struct {
	// Concurrency bounds parallel record lookups and mutations. Default: 16.
	Concurrency int
	// DryRun computes and reports the change set without mutating any zone.
	DryRun bool
	// TTL applied to upserted records. Default: plan.DefaultTTL.
	TTL int64
	// AccountID, when set, restricts identifier extraction to ARNs owned by
	// this account.
	AccountID string
	// Now stamps change comments. Default: time.Now.
	Now func() time.Time

	// Interval is the periodic sweep interval. Default: 60s.
	Interval time.Duration
	// BackoffBase is the starting duration for exponential backoff on
	// consecutive sweep failures. Default: 5s.
	BackoffBase time.Duration
	// BackoffMax is the ceiling for exponential backoff. Default: 5m.
	BackoffMax time.Duration
	// Once causes Run to sweep exactly once then return.
	Once bool
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Interval <= 0 {
		c.Interval = 60 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 5 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 5 * time.Minute
	}
}

// Controller drives reconciliation passes, either for a batch of resource
// references (Reconcile) or for every tagged instance (Sweep, Run).
type Controller struct {
	source   source.Source
	provider provider.Provider
	plan     *plan.Plan
	log      *slog.Logger
	cfg      Config
	ready    atomic.Bool // set true after first successful pass
}

// New returns a Controller wired with the given source, provider, and config.
func New(src source.Source, prov provider.Provider, log *slog.Logger, cfg Config) *Controller {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		source:   src,
		provider: prov,
		plan:     plan.New(plan.Options{TTL: cfg.TTL, Now: cfg.Now}),
		log:      log,
		cfg:      cfg,
	}
}

// IsReady reports whether at least one reconciliation pass has completed
// without failures. Used by the health server to gate the readiness endpoint.
func (c *Controller) IsReady() bool {
	return c.ready.Load()
}

// Reconcile runs one pass for the instances referenced by resources, the
// resource list of a lifecycle event. References that are not EC2 instance
// ARNs are ignored. The returned error is non-nil only when the inventory
// lookup fails; per-pair failures are carried in the Result.
func (c *Controller) Reconcile(ctx context.Context, resources []string) (*Result, error) {
	var opts []source.ExtractOption
	if c.cfg.AccountID != "" {
		opts = append(opts, source.WithAccountID(c.cfg.AccountID))
	}
	ids := source.InstanceIDs(resources, opts...)
	c.log.Debug("extracted instance identifiers", "resources", len(resources), "instances", ids)

	return c.pass(ctx, func(ctx context.Context) ([]*source.Intent, error) {
		if len(ids) == 0 {
			return nil, nil
		}
		return c.source.Intents(ctx, ids)
	})
}

// Sweep runs one pass over every tagged instance.
func (c *Controller) Sweep(ctx context.Context) (*Result, error) {
	return c.pass(ctx, c.source.TaggedIntents)
}

// pass resolves intents, plans, then applies or reports.
func (c *Controller) pass(ctx context.Context, resolve func(context.Context) ([]*source.Intent, error)) (res *Result, retErr error) {
	start := time.Now()
	defer func() {
		reconciliationDuration.Observe(time.Since(start).Seconds())
		switch {
		case retErr != nil, !res.Success():
			reconciliationsTotal.WithLabelValues("error").Inc()
		default:
			reconciliationsTotal.WithLabelValues("success").Inc()
			c.ready.Store(true)
		}
	}()

	intents, err := resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve instances: %w", err)
	}
	instancesResolved.Set(float64(len(intents)))

	res = &Result{DryRun: c.cfg.DryRun}
	res.Changes, res.Failures = c.decide(ctx, intents)

	if len(intents) == 0 {
		c.log.Info("reconcile: no tagged instances")
	}
	if c.cfg.DryRun {
		// An empty plan still reports "[]".
		report, err := Render(res.Changes)
		if err != nil {
			return nil, fmt.Errorf("render dry-run report: %w", err)
		}
		res.Report = report
	}
	if res.Changes.IsEmpty() {
		c.log.Info("reconcile: no changes", "instances", len(intents), "failures", len(res.Failures))
		return res, nil
	}

	c.log.Info("reconcile: planned changes",
		"upsert", res.Changes.Count(plan.ActionUpsert),
		"delete", res.Changes.Count(plan.ActionDelete),
	)

	if c.cfg.DryRun {
		c.log.Info("reconcile: dry-run enabled, skipping apply")
		logChanges(c.log, res.Changes)
		for _, line := range ZoneLines(res.Changes) {
			c.log.Info("dry-run: zone change", "rr", line)
		}
		return res, nil
	}

	applied, failures := c.apply(ctx, res.Changes)
	res.Applied = applied
	res.Failures = append(res.Failures, failures...)

	c.log.Info("reconcile: changes applied", "applied", len(applied), "failures", len(failures))
	return res, nil
}

// backoffDuration returns the backoff duration for the nth consecutive failure.
// It doubles with each failure, capped at BackoffMax.
func (c *Controller) backoffDuration(consecutiveErrors int) time.Duration {
	shift := consecutiveErrors - 1
	if shift < 0 {
		shift = 0
	}
	if shift > 20 { // 2^20 > 1M, prevents overflow
		shift = 20
	}
	d := c.cfg.BackoffBase * time.Duration(1<<uint(shift))
	if d > c.cfg.BackoffMax {
		d = c.cfg.BackoffMax
	}
	return d
}

// Run sweeps all tagged instances periodically. It blocks until ctx is
// cancelled. When cfg.Once is true it sweeps once and returns the pass error.
func (c *Controller) Run(ctx context.Context) error {
	if c.cfg.Once {
		return c.sweepErr(ctx)
	}

	// Fires immediately for the first sweep, then resets to cfg.Interval on
	// success or a computed backoff on failure.
	nextTimer := time.NewTimer(0)
	defer nextTimer.Stop()

	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-nextTimer.C:
			if err := c.sweepErr(ctx); err != nil {
				c.log.Error("reconciliation failed", "err", err)
				consecutiveErrors++
				b := c.backoffDuration(consecutiveErrors)
				c.log.Warn("backing off before next reconciliation",
					"backoff", b.String(), "consecutive_errors", consecutiveErrors)
				nextTimer.Reset(b)
			} else {
				consecutiveErrors = 0
				nextTimer.Reset(c.cfg.Interval)
			}
		}
	}
}

func (c *Controller) sweepErr(ctx context.Context) error {
	res, err := c.Sweep(ctx)
	if err != nil {
		return err
	}
	return res.Err()
}

// logChanges logs the planned changes at INFO level for dry-run inspection.
func logChanges(log *slog.Logger, changes plan.Changes) {
	for _, cr := range changes {
		log.Info("dry-run: would "+lowerAction(cr.Action),
			"instance", cr.InstanceID,
			"zone", cr.ZoneID,
			"name", cr.Record.DNSName,
			"type", cr.Record.RecordType,
			"targets", cr.Record.Targets,
		)
	}
}

func lowerAction(a plan.Action) string {
	switch a {
	case plan.ActionUpsert:
		return "upsert"
	case plan.ActionDelete:
		return "delete"
	}
	return "skip"
}
