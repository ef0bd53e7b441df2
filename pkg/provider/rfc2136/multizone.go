package rfc2136

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/miekg/dns"

	"github.com/bkero/ec2-route53-sync/pkg/endpoint"
	"github.com/bkero/ec2-route53-sync/pkg/plan"
)

// ZoneConfig holds per-zone RFC2136 provider configuration.
// TSIGSecretFile, if set, must be resolved to TSIGSecret by the caller before
// passing to NewMulti.
type ZoneConfig struct {
	Host           string
	Port           int
	Zone           string
	TSIGKey        string
	TSIGSecret     string
	TSIGSecretFile string
	TSIGAlg        string
	MinTTL         int64
	Timeout        time.Duration
}

func (zc ZoneConfig) config() Config {
	return Config{
		Host:          zc.Host,
		Port:          zc.Port,
		Zone:          zc.Zone,
		TSIGKeyName:   zc.TSIGKey,
		TSIGSecret:    zc.TSIGSecret,
		TSIGSecretAlg: zc.TSIGAlg,
		MinTTL:        zc.MinTTL,
		Timeout:       zc.Timeout,
	}
}

// MultiProvider implements provider.Provider for several RFC2136 zones,
// routing each call to the zone named by its zone ID.
type MultiProvider struct {
	zones map[string]*Provider // keyed by canonical zone name
	order []string
	log   *slog.Logger
}

// NewMulti creates a MultiProvider from a slice of ZoneConfigs.
// TSIGSecretFile in each config must already be resolved to TSIGSecret.
func NewMulti(configs []ZoneConfig, log *slog.Logger) *MultiProvider {
	if log == nil {
		log = slog.Default()
	}
	m := &MultiProvider{zones: make(map[string]*Provider, len(configs)), log: log}
	for _, zc := range configs {
		m.add(New(zc.config(), log))
	}
	return m
}

func (m *MultiProvider) add(p *Provider) {
	if _, dup := m.zones[p.Zone()]; dup {
		m.log.Warn("duplicate zone config, keeping the first", "zone", p.Zone())
		return
	}
	m.zones[p.Zone()] = p
	m.order = append(m.order, p.Zone())
}

// Records dispatches to the provider serving zoneID.
func (m *MultiProvider) Records(ctx context.Context, zoneID, name, recordType string) ([]*endpoint.Endpoint, error) {
	p, err := m.zoneFor(zoneID)
	if err != nil {
		return nil, err
	}
	return p.Records(ctx, zoneID, name, recordType)
}

// ApplyChange dispatches to the provider serving change.ZoneID.
func (m *MultiProvider) ApplyChange(ctx context.Context, change *plan.ChangeRequest) error {
	p, err := m.zoneFor(change.ZoneID)
	if err != nil {
		return err
	}
	return p.ApplyChange(ctx, change)
}

// Preflight runs SOA preflight checks against all zones sequentially.
// Returns the first error encountered.
func (m *MultiProvider) Preflight(ctx context.Context) error {
	for _, z := range m.order {
		if err := m.zones[z].Preflight(ctx); err != nil {
			return fmt.Errorf("zone %s: %w", z, err)
		}
	}
	return nil
}

// Zones returns the configured zone names in configuration order.
func (m *MultiProvider) Zones() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

func (m *MultiProvider) zoneFor(zoneID string) (*Provider, error) {
	p, ok := m.zones[dns.CanonicalName(zoneID)]
	if !ok {
		return nil, fmt.Errorf("no rfc2136 server configured for zone %s", zoneID)
	}
	return p, nil
}
