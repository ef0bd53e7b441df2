// Package endpoint defines the Endpoint type that represents a single DNS
// address record, either desired or as read back from a provider.
package endpoint

import (
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
)

// RecordTypeA is the only record type this daemon publishes.
const RecordTypeA = "A"

// Label keys carrying provider metadata that must survive a read → delete
// round trip (e.g. Route 53 alias records have no TTL or values of their own).
const (
	LabelAliasDNSName        = "alias-dns-name"
	LabelAliasHostedZoneID   = "alias-hosted-zone-id"
	LabelAliasEvaluateHealth = "alias-evaluate-target-health"
	LabelSetIdentifier       = "set-identifier"
)

// Endpoint represents a DNS record.
type Endpoint struct {
	// DNSName is the fully-qualified DNS name, canonically with a trailing dot.
	DNSName string
	// Targets is the list of values the record points to.
	Targets []string
	// RecordType is the DNS record type.
	RecordType string
	// TTL is the time-to-live in seconds.
	TTL int64
	// Labels carries provider metadata.
	Labels map[string]string
}

// New returns an Endpoint. A nil labels map is replaced by an empty one.
func New(dnsName string, targets []string, recordType string, ttl int64, labels map[string]string) *Endpoint {
	if labels == nil {
		labels = map[string]string{}
	}
	return &Endpoint{
		DNSName:    dnsName,
		Targets:    targets,
		RecordType: recordType,
		TTL:        ttl,
		Labels:     labels,
	}
}

// String returns a human-readable representation of the endpoint.
func (e *Endpoint) String() string {
	return fmt.Sprintf("%s %s %s (TTL %d)", e.DNSName, e.RecordType, strings.Join(e.Targets, ","), e.TTL)
}

// IsAlias reports whether the endpoint was read from a provider alias record.
func (e *Endpoint) IsAlias() bool {
	return e.Labels[LabelAliasDNSName] != ""
}

// RRs converts the endpoint to miekg/dns resource records, one per target.
func (e *Endpoint) RRs() ([]dns.RR, error) {
	if e.RecordType != RecordTypeA {
		return nil, fmt.Errorf("unsupported record type %q", e.RecordType)
	}
	name := Fqdn(e.DNSName)
	rrs := make([]dns.RR, 0, len(e.Targets))
	for _, target := range e.Targets {
		ip := net.ParseIP(target).To4()
		if ip == nil {
			return nil, fmt.Errorf("invalid IPv4 address %q for A record", target)
		}
		rrs = append(rrs, &dns.A{
			Hdr: dns.RR_Header{
				Name:   name,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    uint32(e.TTL),
			},
			A: ip,
		})
	}
	return rrs, nil
}

// Fqdn returns name in canonical form: every trailing dot stripped, then
// exactly one re-appended. An empty name stays empty.
func Fqdn(name string) string {
	name = Trim(name)
	if name == "" {
		return ""
	}
	return dns.Fqdn(name)
}

// Trim returns name with all trailing dots removed.
func Trim(name string) string {
	return strings.TrimRight(name, ".")
}

// SameName reports whether a and b name the same record once trailing dots
// are ignored. DNS names are case-insensitive, and Route 53 lists them
// lowercased. The comparison is exact otherwise: a name that is merely a
// prefix of the other does not match.
func SameName(a, b string) bool {
	return strings.EqualFold(Trim(a), Trim(b))
}

// IsValidName reports whether name is a syntactically valid DNS name.
func IsValidName(name string) bool {
	if Trim(name) == "" {
		return false
	}
	_, ok := dns.IsDomainName(name)
	return ok
}
