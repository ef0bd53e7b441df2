package controller

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/bkero/ec2-route53-sync/pkg/plan"
)

// apply submits every change as an independent provider call. A mutation
// that has started runs to completion even if ctx is cancelled meanwhile;
// changes still queued at cancellation fail with the context error.
func (c *Controller) apply(ctx context.Context, changes plan.Changes) (plan.Changes, []error) {
	errs := make([]error, len(changes))
	detached := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, cr := range changes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = &RecordMutationError{Change: cr, Err: err}
				return nil
			}
			errs[i] = c.applyOne(detached, cr)
			return nil
		})
	}
	_ = g.Wait()

	applied := plan.Changes{}
	var failures []error
	for i, err := range errs {
		if err != nil {
			failures = append(failures, err)
			continue
		}
		applied = append(applied, changes[i])
	}
	return applied, failures
}

func (c *Controller) applyOne(ctx context.Context, cr *plan.ChangeRequest) error {
	op := lowerAction(cr.Action)
	if err := c.provider.ApplyChange(ctx, cr); err != nil {
		dnsOperationsTotal.WithLabelValues(op, "error").Inc()
		c.log.Error("change rejected", "instance", cr.InstanceID, "zone", cr.ZoneID, "change", cr.String(), "err", err)
		return &RecordMutationError{Change: cr, Err: err}
	}
	dnsOperationsTotal.WithLabelValues(op, "success").Inc()
	c.log.Info("change applied", "instance", cr.InstanceID, "zone", cr.ZoneID, "change", cr.String())
	return nil
}
