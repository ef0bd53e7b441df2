package controller

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/bkero/ec2-route53-sync/pkg/endpoint"
	"github.com/bkero/ec2-route53-sync/pkg/plan"
	"github.com/bkero/ec2-route53-sync/pkg/source"
)

// pair is one unit of reconciliation work.
type pair struct {
	intent *source.Intent
	zoneID string
}

// outcome is the result slot of one pair; each goroutine writes only its own.
type outcome struct {
	change *plan.ChangeRequest
	err    error
}

func pairs(intents []*source.Intent) []pair {
	var out []pair
	for _, in := range intents {
		for _, z := range in.ZoneIDs {
			out = append(out, pair{intent: in, zoneID: z})
		}
	}
	return out
}

// decide looks up the current record of every (instance, zone) pair in
// parallel and applies the decision table. A failed lookup fails only its own
// pair.
func (c *Controller) decide(ctx context.Context, intents []*source.Intent) (plan.Changes, []error) {
	work := pairs(intents)
	results := make([]outcome, len(work))

	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, p := range work {
		g.Go(func() error {
			results[i] = c.decidePair(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	changes := plan.Changes{}
	var failures []error
	for _, r := range results {
		switch {
		case r.err != nil:
			failures = append(failures, r.err)
		case r.change != nil:
			changes = append(changes, r.change)
		}
	}
	return changes, failures
}

func (c *Controller) decidePair(ctx context.Context, p pair) outcome {
	in := p.intent
	log := c.log.With("instance", in.InstanceID, "zone", p.zoneID, "domain", in.Domain)

	if err := ctx.Err(); err != nil {
		return outcome{err: &RecordQueryError{InstanceID: in.InstanceID, ZoneID: p.zoneID, Domain: in.Domain, Err: err}}
	}
	candidates, err := c.provider.Records(ctx, p.zoneID, in.Domain, endpoint.RecordTypeA)
	if err != nil {
		dnsOperationsTotal.WithLabelValues("query", "error").Inc()
		log.Error("record lookup failed", "err", err)
		return outcome{err: &RecordQueryError{InstanceID: in.InstanceID, ZoneID: p.zoneID, Domain: in.Domain, Err: err}}
	}
	dnsOperationsTotal.WithLabelValues("query", "success").Inc()

	existing := plan.MatchRecord(candidates, in.Domain)
	if !in.State.Known() {
		log.Warn("unrecognized lifecycle state, publishing", "state", in.State)
	}
	d := c.plan.Decide(in, p.zoneID, existing)
	decisionsTotal.WithLabelValues(string(d.Action)).Inc()
	log.Debug("decided", "action", d.Action, "reason", d.Reason, "state", in.State, "existing", existing != nil)
	return outcome{change: d.Change}
}
