// Package plan holds the reconciliation decision table and the change types it
// produces.
package plan

import (
	"fmt"

	"github.com/bkero/ec2-route53-sync/pkg/endpoint"
)

// Action is the outcome of a decision for one (instance, zone) pair.
type Action string

const (
	// ActionNone means the zone already matches the desired state.
	ActionNone Action = "NONE"
	// ActionUpsert creates the record or overwrites it with the desired value.
	ActionUpsert Action = "UPSERT"
	// ActionDelete removes the record exactly as it was read.
	ActionDelete Action = "DELETE"
)

// ChangeRequest is one mutation against one zone.
type ChangeRequest struct {
	// ZoneID is the hosted zone the change targets.
	ZoneID string
	// InstanceID is the instance the change was derived from.
	InstanceID string
	// Action is ActionUpsert or ActionDelete, never ActionNone.
	Action Action
	// Record is the desired record for upserts, or the record as read back
	// from the provider for deletes.
	Record *endpoint.Endpoint
	// Comment is an audit string stamped with the decision time.
	Comment string
}

// String returns a human-readable representation of the change.
func (c *ChangeRequest) String() string {
	return fmt.Sprintf("%s %s in zone %s", c.Action, c.Record, c.ZoneID)
}

// Decision is the result of Decide. Change is non-nil exactly when Action is
// not ActionNone.
type Decision struct {
	Action Action
	// Reason is a short explanation for logs.
	Reason string
	Change *ChangeRequest
}

// Changes holds the change requests of a single reconciliation pass.
type Changes []*ChangeRequest

// IsEmpty reports whether the change set has no operations.
func (c Changes) IsEmpty() bool {
	return len(c) == 0
}

// Count returns the number of requests carrying action a.
func (c Changes) Count(a Action) int {
	n := 0
	for _, cr := range c {
		if cr.Action == a {
			n++
		}
	}
	return n
}
