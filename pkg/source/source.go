// Package source resolves EC2 instances into the DNS intents that drive
// reconciliation.
package source

import (
	"context"
	"fmt"
)

// LifecycleState is an EC2 instance state name. Values outside the known set
// are kept verbatim so they can be logged and handled by the decision table.
type LifecycleState string

// Known EC2 lifecycle states.
const (
	StatePending      LifecycleState = "pending"
	StateRunning      LifecycleState = "running"
	StateShuttingDown LifecycleState = "shutting-down"
	StateTerminated   LifecycleState = "terminated"
	StateStopping     LifecycleState = "stopping"
	StateStopped      LifecycleState = "stopped"
)

// Known reports whether s is one of the six EC2 lifecycle states.
func (s LifecycleState) Known() bool {
	switch s {
	case StatePending, StateRunning, StateShuttingDown, StateTerminated, StateStopping, StateStopped:
		return true
	}
	return false
}

// Up reports whether the instance is running or about to be.
func (s LifecycleState) Up() bool {
	return s == StatePending || s == StateRunning
}

// Down reports whether the instance is going away or gone.
func (s LifecycleState) Down() bool {
	switch s {
	case StateShuttingDown, StateTerminated, StateStopping, StateStopped:
		return true
	}
	return false
}

// Intent is the desired DNS presence of one tagged instance.
type Intent struct {
	// InstanceID is the EC2 instance ID, e.g. "i-0123456789abcdef0".
	InstanceID string
	// Address is the instance's private IPv4 address. Empty when EC2 reports
	// none (terminated instances release theirs).
	Address string
	// Domain is the canonical FQDN, always with one trailing dot.
	Domain string
	// ZoneIDs lists the hosted zones the domain is published into.
	ZoneIDs []string
	// State is the instance lifecycle state as reported by EC2.
	State LifecycleState
}

func (i *Intent) String() string {
	return fmt.Sprintf("%s %s -> %s (%s)", i.InstanceID, i.Domain, i.Address, i.State)
}

// Source resolves instances into intents.
type Source interface {
	// Intents returns the intents for the given instance IDs. Instances
	// lacking the required tags are silently omitted.
	Intents(ctx context.Context, instanceIDs []string) ([]*Intent, error)

	// TaggedIntents returns the intents for every instance carrying the
	// required tags.
	TaggedIntents(ctx context.Context) ([]*Intent, error)
}

// InventoryLookupError is returned when the batched instance lookup fails.
// It is fatal to a reconciliation: no intent data is reachable.
type InventoryLookupError struct {
	Err error
}

func (e *InventoryLookupError) Error() string {
	return fmt.Sprintf("inventory lookup: %v", e.Err)
}

func (e *InventoryLookupError) Unwrap() error { return e.Err }
