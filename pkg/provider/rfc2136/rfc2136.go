// Package rfc2136 implements a DNS provider using RFC2136 dynamic updates,
// for zones served by an authoritative server instead of Route 53. Zone IDs
// are zone names in this mode.
package rfc2136

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/bkero/ec2-route53-sync/pkg/endpoint"
	"github.com/bkero/ec2-route53-sync/pkg/plan"
)

// dnsExchanger abstracts dns.Client.ExchangeContext for testability.
type dnsExchanger interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, addr string) (*dns.Msg, time.Duration, error)
}

// defaultTimeout is the DNS operation timeout applied when none is configured.
const defaultTimeout = 10 * time.Second

// Config holds all RFC2136 provider configuration.
type Config struct {
	Host          string
	Port          int
	Zone          string
	TSIGKeyName   string
	TSIGSecret    string
	TSIGSecretAlg string // e.g. "hmac-sha256" (trailing dot optional)
	MinTTL        int64
	Timeout       time.Duration // DNS operation timeout; 0 uses defaultTimeout (10s)
}

// Provider implements provider.Provider for one zone on an RFC2136-capable
// DNS server.
type Provider struct {
	cfg       Config
	zone      string // dns.Fqdn-normalised
	server    string // "host:port"
	tsigAlg   string // normalised algorithm name (with trailing dot)
	log       *slog.Logger
	exchanger dnsExchanger
}

// New returns a configured RFC2136 Provider.
func New(cfg Config, log *slog.Logger) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	tsigSecret := map[string]string{
		dns.Fqdn(cfg.TSIGKeyName): cfg.TSIGSecret,
	}
	return newWithDeps(cfg, log, &dns.Client{
		Net:        "tcp",
		TsigSecret: tsigSecret,
		Timeout:    cfg.Timeout,
	})
}

// newWithDeps constructs a Provider with an injected transport for testing.
func newWithDeps(cfg Config, log *slog.Logger, e dnsExchanger) *Provider {
	if cfg.Port == 0 {
		cfg.Port = 53
	}
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		cfg:       cfg,
		zone:      dns.CanonicalName(cfg.Zone),
		server:    net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		tsigAlg:   normaliseTSIGAlg(cfg.TSIGSecretAlg),
		log:       log,
		exchanger: e,
	}
}

// Zone returns the canonical name of the zone this provider serves.
func (p *Provider) Zone() string { return p.zone }

// Preflight validates connectivity and TSIG credentials by sending a SOA query
// to the configured DNS server. Returns an error if the server is unreachable
// or responds with a non-success rcode (e.g. NOTAUTH on bad TSIG).
func (p *Provider) Preflight(ctx context.Context) error {
	m := new(dns.Msg)
	m.SetQuestion(p.zone, dns.TypeSOA)
	p.sign(m)
	r, _, err := p.exchanger.ExchangeContext(ctx, m, p.server)
	if err != nil {
		return fmt.Errorf("preflight SOA query to %s failed: %w", p.server, err)
	}
	if r.Rcode != dns.RcodeSuccess {
		return fmt.Errorf("preflight SOA query failed: rcode %s (%d), check the zone host and TSIG credentials",
			dns.RcodeToString[r.Rcode], r.Rcode)
	}
	return nil
}

// Records queries the server for (name, recordType) and returns the answer
// RRset as a single endpoint. NXDOMAIN yields no records.
func (p *Provider) Records(ctx context.Context, zoneID, name, recordType string) ([]*endpoint.Endpoint, error) {
	if err := p.checkZone(zoneID, name); err != nil {
		return nil, err
	}
	qtype, ok := dns.StringToType[recordType]
	if !ok {
		return nil, fmt.Errorf("unsupported record type %q", recordType)
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = false
	p.sign(m)

	r, _, err := p.exchanger.ExchangeContext(ctx, m, p.server)
	if err != nil {
		return nil, fmt.Errorf("query %s %s: %w", name, recordType, err)
	}
	switch r.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("query %s %s failed: rcode %s (%d)", name, recordType, dns.RcodeToString[r.Rcode], r.Rcode)
	}

	var ep *endpoint.Endpoint
	for _, rr := range r.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if ep == nil {
			ep = endpoint.New(a.Hdr.Name, nil, endpoint.RecordTypeA, int64(a.Hdr.Ttl), nil)
		}
		ep.Targets = append(ep.Targets, a.A.String())
	}
	if ep == nil {
		return nil, nil
	}
	return []*endpoint.Endpoint{ep}, nil
}

// ApplyChange sends one RFC2136 UPDATE message. An upsert replaces the whole
// RRset; a delete removes exactly the RRs that were read.
func (p *Provider) ApplyChange(ctx context.Context, change *plan.ChangeRequest) error {
	if err := p.checkZone(change.ZoneID, change.Record.DNSName); err != nil {
		return err
	}
	rec := *change.Record
	rec.TTL = p.effectiveTTL(rec.TTL)
	rrs, err := rec.RRs()
	if err != nil {
		return fmt.Errorf("%s %s: %w", change.Action, rec.DNSName, err)
	}
	if len(rrs) == 0 {
		return fmt.Errorf("%s %s: record has no values", change.Action, rec.DNSName)
	}

	m := new(dns.Msg)
	m.SetUpdate(p.zone)
	switch change.Action {
	case plan.ActionUpsert:
		m.RemoveRRset(rrs[:1])
		m.Insert(rrs)
	case plan.ActionDelete:
		m.Remove(rrs)
	default:
		return fmt.Errorf("unsupported action %q", change.Action)
	}
	p.sign(m)

	r, _, err := p.exchanger.ExchangeContext(ctx, m, p.server)
	if err != nil {
		return fmt.Errorf("dns update exchange: %w", err)
	}
	if r.Rcode != dns.RcodeSuccess {
		return fmt.Errorf("dns update failed: rcode %s (%d)", dns.RcodeToString[r.Rcode], r.Rcode)
	}
	return nil
}

// checkZone verifies zoneID names this provider's zone and that name lies
// within it.
func (p *Provider) checkZone(zoneID, name string) error {
	if dns.CanonicalName(zoneID) != p.zone {
		return fmt.Errorf("zone %s is not served by %s (zone %s)", zoneID, p.server, p.zone)
	}
	if !dns.IsSubDomain(p.zone, dns.CanonicalName(name)) {
		return fmt.Errorf("name %s is outside zone %s", name, p.zone)
	}
	return nil
}

func (p *Provider) sign(m *dns.Msg) {
	if p.cfg.TSIGKeyName != "" {
		m.SetTsig(dns.Fqdn(p.cfg.TSIGKeyName), p.tsigAlg, 300, time.Now().Unix())
	}
}

// effectiveTTL returns the TTL to use, enforcing MinTTL when configured.
func (p *Provider) effectiveTTL(ttl int64) int64 {
	if p.cfg.MinTTL > 0 && ttl < p.cfg.MinTTL {
		return p.cfg.MinTTL
	}
	return ttl
}

// normaliseTSIGAlg ensures the algorithm name has a trailing dot as required
// by miekg/dns. Accepts both "hmac-sha256" and "hmac-sha256.".
func normaliseTSIGAlg(alg string) string {
	if alg == "" {
		return dns.HmacSHA256
	}
	if !strings.HasSuffix(alg, ".") {
		alg += "."
	}
	return strings.ToLower(alg)
}
