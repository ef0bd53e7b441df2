// Package fake provides an in-memory Provider implementation for testing.
package fake

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bkero/ec2-route53-sync/pkg/endpoint"
	"github.com/bkero/ec2-route53-sync/pkg/plan"
)

// Provider is an in-memory, multi-zone DNS provider for testing. Lookups
// mimic Route 53 list semantics: the first record at or after the requested
// name is returned, so callers see nearest matches too.
type Provider struct {
	mu         sync.Mutex
	zones      map[string]map[string]*endpoint.Endpoint // zoneID → key → record
	history    []*plan.ChangeRequest
	lookupErrs map[string]error // zoneID → error
	applyErrs  map[string]error // zoneID → error
	lookups    int
}

// New returns an empty Provider.
func New() *Provider {
	return &Provider{
		zones:      make(map[string]map[string]*endpoint.Endpoint),
		lookupErrs: make(map[string]error),
		applyErrs:  make(map[string]error),
	}
}

// Add stores ep in zoneID.
func (p *Provider) Add(zoneID string, ep *endpoint.Endpoint) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.zone(zoneID)[key(ep)] = ep
	return p
}

// FailLookups makes Records fail for zoneID.
func (p *Provider) FailLookups(zoneID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookupErrs[zoneID] = err
}

// FailApplies makes ApplyChange fail for changes targeting zoneID.
func (p *Provider) FailApplies(zoneID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyErrs[zoneID] = err
}

// Records returns the first record in zoneID whose key sorts at or after
// (name, recordType).
func (p *Provider) Records(_ context.Context, zoneID, name, recordType string) ([]*endpoint.Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookups++
	if err := p.lookupErrs[zoneID]; err != nil {
		return nil, err
	}
	z := p.zones[zoneID]
	keys := make([]string, 0, len(z))
	for k := range z {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	start := nameKey(name, recordType)
	for _, k := range keys {
		if k >= start {
			return []*endpoint.Endpoint{z[k]}, nil
		}
	}
	return nil, nil
}

// ApplyChange applies an upsert or delete to the in-memory store and appends
// it to the history.
func (p *Provider) ApplyChange(_ context.Context, change *plan.ChangeRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.applyErrs[change.ZoneID]; err != nil {
		return err
	}
	z := p.zone(change.ZoneID)
	k := key(change.Record)
	switch change.Action {
	case plan.ActionUpsert:
		z[k] = change.Record
	case plan.ActionDelete:
		if _, ok := z[k]; !ok {
			return fmt.Errorf("record %s not found in zone %s", change.Record.DNSName, change.ZoneID)
		}
		delete(z, k)
	default:
		return fmt.Errorf("unsupported action %q", change.Action)
	}
	p.history = append(p.history, change)
	return nil
}

// Get returns the record stored for (name, A) in zoneID, or nil.
func (p *Provider) Get(zoneID, name string) *endpoint.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zones[zoneID][nameKey(name, endpoint.RecordTypeA)]
}

// History returns all applied changes, oldest first.
func (p *Provider) History() []*plan.ChangeRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*plan.ChangeRequest, len(p.history))
	copy(out, p.history)
	return out
}

// RecordCount returns the number of records stored in zoneID.
func (p *Provider) RecordCount(zoneID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.zones[zoneID])
}

// LookupCount returns the number of Records calls made so far.
func (p *Provider) LookupCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookups
}

func (p *Provider) zone(zoneID string) map[string]*endpoint.Endpoint {
	z, ok := p.zones[zoneID]
	if !ok {
		z = make(map[string]*endpoint.Endpoint)
		p.zones[zoneID] = z
	}
	return z
}

// Names are stored lowercased, as Route 53 does.
func key(ep *endpoint.Endpoint) string {
	return nameKey(ep.DNSName, ep.RecordType)
}

func nameKey(name, recordType string) string {
	return strings.ToLower(endpoint.Fqdn(name)) + "|" + recordType
}
