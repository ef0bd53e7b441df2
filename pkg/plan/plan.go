package plan

import (
	"fmt"
	"time"

	"github.com/bkero/ec2-route53-sync/pkg/endpoint"
	"github.com/bkero/ec2-route53-sync/pkg/source"
)

const (
	// DefaultTTL is the TTL of published records. It is kept short because
	// the record is the only source of an instance's current address.
	DefaultTTL = int64(5)

	commentPrefix = "Automated update by ec2-route53-sync @ "
)

// Options tunes a Plan.
type Options struct {
	// TTL applied to upserted records. Default: DefaultTTL.
	TTL int64
	// Now returns the decision time stamped into change comments.
	// Default: time.Now.
	Now func() time.Time
}

// Plan decides, per (instance, zone) pair, which change converges the zone
// toward the instance's lifecycle state.
type Plan struct {
	ttl int64
	now func() time.Time
}

// New returns a Plan with defaults applied to zero-valued options.
func New(opts Options) *Plan {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Plan{ttl: opts.TTL, now: opts.Now}
}

// TTL returns the TTL applied to upserted records.
func (p *Plan) TTL() int64 { return p.ttl }

// Decide applies the decision table to one intent and the record currently
// published at (zoneID, intent.Domain, A), nil when absent:
//
//	absent                    → UPSERT
//	present, instance down    → DELETE the existing record
//	present, instance up      → none
//	present, unknown state    → UPSERT (fail open)
//
// "Up" is pending or running; "down" is shutting-down, terminated, stopping
// or stopped. An upsert is suppressed when the instance has no address.
func (p *Plan) Decide(in *source.Intent, zoneID string, existing *endpoint.Endpoint) Decision {
	switch {
	case existing != nil && in.State.Down():
		return p.decision(ActionDelete, "instance "+string(in.State), in, zoneID, existing)
	case existing != nil && in.State.Up():
		return Decision{Action: ActionNone, Reason: "record present and instance " + string(in.State)}
	}

	reason := "record absent"
	if existing != nil {
		reason = fmt.Sprintf("unrecognized lifecycle state %q", in.State)
	}
	if in.Address == "" {
		return Decision{Action: ActionNone, Reason: "no address to publish"}
	}
	desired := endpoint.New(in.Domain, []string{in.Address}, endpoint.RecordTypeA, p.ttl, nil)
	return p.decision(ActionUpsert, reason, in, zoneID, desired)
}

func (p *Plan) decision(a Action, reason string, in *source.Intent, zoneID string, rec *endpoint.Endpoint) Decision {
	return Decision{
		Action: a,
		Reason: reason,
		Change: &ChangeRequest{
			ZoneID:     zoneID,
			InstanceID: in.InstanceID,
			Action:     a,
			Record:     rec,
			Comment:    commentPrefix + p.now().Format(time.RFC1123Z),
		},
	}
}

// MatchRecord returns the A record among candidates whose name equals domain,
// ignoring trailing dots, or nil. Providers list records starting at a name,
// so the nearest following record is often returned; it must not count as a
// match.
func MatchRecord(candidates []*endpoint.Endpoint, domain string) *endpoint.Endpoint {
	for _, c := range candidates {
		if c == nil || c.RecordType != endpoint.RecordTypeA {
			continue
		}
		if endpoint.SameName(c.DNSName, domain) {
			return c
		}
	}
	return nil
}
