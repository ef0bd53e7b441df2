// Package provider defines the Provider interface for DNS backends.
package provider

import (
	"context"

	"github.com/bkero/ec2-route53-sync/pkg/endpoint"
	"github.com/bkero/ec2-route53-sync/pkg/plan"
)

// Provider is implemented by every DNS backend.
type Provider interface {
	// Records returns the records the backend reports for a lookup of
	// (name, recordType) in zone. Backends may return nearby records as
	// well; callers must match names exactly.
	Records(ctx context.Context, zoneID, name, recordType string) ([]*endpoint.Endpoint, error)

	// ApplyChange submits a single change request.
	ApplyChange(ctx context.Context, change *plan.ChangeRequest) error
}
