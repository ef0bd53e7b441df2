package controller

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/bkero/ec2-route53-sync/pkg/plan"
)

// Result is the outcome of one reconciliation pass. It is heterogeneous:
// failed pairs and requests are listed alongside whatever succeeded.
type Result struct {
	// DryRun reports whether the pass ran in report-only mode.
	DryRun bool
	// Changes is the full planned change set, in (instance, zone) order.
	Changes plan.Changes
	// Applied lists the changes the provider accepted. Always empty in
	// dry-run mode.
	Applied plan.Changes
	// Failures holds one RecordQueryError or RecordMutationError per failed
	// pair or request.
	Failures []error
	// Report is the rendered change set in dry-run mode.
	Report string
}

// Success reports whether the pass completed without failures. A pass with
// nothing to do is a success.
func (r *Result) Success() bool {
	return r != nil && len(r.Failures) == 0
}

// Err aggregates Failures into a single error, or returns nil.
func (r *Result) Err() error {
	if r == nil {
		return nil
	}
	var merr *multierror.Error
	for _, f := range r.Failures {
		merr = multierror.Append(merr, f)
	}
	return merr.ErrorOrNil()
}

// RecordQueryError is the failure of the existing-record lookup for one
// (instance, zone) pair. Other pairs are unaffected.
type RecordQueryError struct {
	InstanceID string
	ZoneID     string
	Domain     string
	Err        error
}

func (e *RecordQueryError) Error() string {
	return fmt.Sprintf("query %s in zone %s for instance %s: %v", e.Domain, e.ZoneID, e.InstanceID, e.Err)
}

func (e *RecordQueryError) Unwrap() error { return e.Err }

// RecordMutationError is the failure of one submitted change. Other changes
// are unaffected.
type RecordMutationError struct {
	Change *plan.ChangeRequest
	Err    error
}

func (e *RecordMutationError) Error() string {
	return fmt.Sprintf("%s for instance %s: %v", e.Change, e.Change.InstanceID, e.Err)
}

func (e *RecordMutationError) Unwrap() error { return e.Err }
