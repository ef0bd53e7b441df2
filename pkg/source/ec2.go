package source

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ec2"

	"github.com/bkero/ec2-route53-sync/pkg/endpoint"
)

// Default tag keys read from instances.
const (
	DefaultDomainTag = "r53-domain-name"
	DefaultZonesTag  = "r53-zone-ids"
)

const hostedZonePrefix = "/hostedzone/"

// ec2API is the subset of the EC2 client used by EC2Source.
// Defined as an interface so tests can inject a mock.
type ec2API interface {
	DescribeInstancesPagesWithContext(ctx aws.Context, input *ec2.DescribeInstancesInput, fn func(*ec2.DescribeInstancesOutput, bool) bool, opts ...request.Option) error
}

// EC2Config holds the tag keys that carry DNS intent.
type EC2Config struct {
	// DomainTag names the tag holding the record name. Default: r53-domain-name.
	DomainTag string
	// ZonesTag names the tag holding comma-separated hosted zone IDs.
	// Default: r53-zone-ids.
	ZonesTag string
}

func (c *EC2Config) applyDefaults() {
	if c.DomainTag == "" {
		c.DomainTag = DefaultDomainTag
	}
	if c.ZonesTag == "" {
		c.ZonesTag = DefaultZonesTag
	}
}

// EC2Source implements Source against the EC2 DescribeInstances API.
type EC2Source struct {
	client ec2API
	cfg    EC2Config
	log    *slog.Logger
}

// NewEC2Source returns an EC2Source using a client built from p (usually a
// session.Session scoped to one region).
func NewEC2Source(p client.ConfigProvider, cfg EC2Config, log *slog.Logger) *EC2Source {
	return newEC2SourceWithClient(ec2.New(p), cfg, log)
}

// newEC2SourceWithClient constructs an EC2Source with an injected client.
func newEC2SourceWithClient(c ec2API, cfg EC2Config, log *slog.Logger) *EC2Source {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &EC2Source{client: c, cfg: cfg, log: log}
}

// Intents looks up the given instances in a single batched call. An empty ID
// list returns no intents without calling EC2: DescribeInstances without IDs
// would describe the whole account.
func (s *EC2Source) Intents(ctx context.Context, instanceIDs []string) ([]*Intent, error) {
	ids := dedupe(instanceIDs)
	if len(ids) == 0 {
		return []*Intent{}, nil
	}
	return s.describe(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: aws.StringSlice(ids),
	})
}

// TaggedIntents returns intents for all instances carrying the domain tag.
// Instances without the zones tag are still filtered out client-side.
func (s *EC2Source) TaggedIntents(ctx context.Context) ([]*Intent, error) {
	return s.describe(ctx, &ec2.DescribeInstancesInput{
		Filters: []*ec2.Filter{{
			Name:   aws.String("tag-key"),
			Values: aws.StringSlice([]string{s.cfg.DomainTag}),
		}},
	})
}

func (s *EC2Source) describe(ctx context.Context, input *ec2.DescribeInstancesInput) ([]*Intent, error) {
	intents := []*Intent{}
	err := s.client.DescribeInstancesPagesWithContext(ctx, input, func(page *ec2.DescribeInstancesOutput, _ bool) bool {
		for _, r := range page.Reservations {
			for _, inst := range r.Instances {
				if in := s.intentFor(inst); in != nil {
					intents = append(intents, in)
				}
			}
		}
		return true
	})
	if err != nil {
		return nil, &InventoryLookupError{Err: err}
	}
	return intents, nil
}

// intentFor builds the Intent for one instance, or returns nil when the
// instance does not carry usable DNS tags.
func (s *EC2Source) intentFor(inst *ec2.Instance) *Intent {
	id := aws.StringValue(inst.InstanceId)
	tags := tagMap(inst.Tags)

	rawDomain, hasDomain := tags[s.cfg.DomainTag]
	rawZones, hasZones := tags[s.cfg.ZonesTag]
	if !hasDomain || !hasZones {
		s.log.Debug("instance missing dns tags, skipping",
			"instance", id, "has_domain_tag", hasDomain, "has_zones_tag", hasZones)
		return nil
	}

	domain := endpoint.Fqdn(strings.TrimSpace(rawDomain))
	if !endpoint.IsValidName(domain) {
		s.log.Warn("instance has invalid domain tag, skipping",
			"instance", id, "tag", s.cfg.DomainTag, "value", rawDomain)
		return nil
	}

	zoneIDs := splitZoneIDs(rawZones)
	if len(zoneIDs) == 0 {
		s.log.Warn("instance has empty zones tag, skipping",
			"instance", id, "tag", s.cfg.ZonesTag)
		return nil
	}

	var state LifecycleState
	if inst.State != nil {
		state = LifecycleState(aws.StringValue(inst.State.Name))
	}

	return &Intent{
		InstanceID: id,
		Address:    aws.StringValue(inst.PrivateIpAddress),
		Domain:     domain,
		ZoneIDs:    zoneIDs,
		State:      state,
	}
}

// tagMap converts EC2 tags to a map. Later duplicates overwrite earlier ones.
func tagMap(tags []*ec2.Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		if t == nil || t.Key == nil {
			continue
		}
		m[*t.Key] = aws.StringValue(t.Value)
	}
	return m
}

// splitZoneIDs splits a comma-separated zone list, dropping blanks and the
// "/hostedzone/" prefix Route 53 sometimes reports.
func splitZoneIDs(raw string) []string {
	var out []string
	for _, z := range strings.Split(raw, ",") {
		z = strings.TrimPrefix(strings.TrimSpace(z), hostedZonePrefix)
		if z != "" {
			out = append(out, z)
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
