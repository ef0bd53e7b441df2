// Package route53 implements a DNS provider backed by Amazon Route 53.
package route53

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/route53"

	"github.com/bkero/ec2-route53-sync/pkg/endpoint"
	"github.com/bkero/ec2-route53-sync/pkg/plan"
)

// route53API is the subset of the Route 53 client used by Provider.
// Defined as an interface so tests can inject a mock.
type route53API interface {
	ListResourceRecordSetsWithContext(ctx aws.Context, input *route53.ListResourceRecordSetsInput, opts ...request.Option) (*route53.ListResourceRecordSetsOutput, error)
	ChangeResourceRecordSetsWithContext(ctx aws.Context, input *route53.ChangeResourceRecordSetsInput, opts ...request.Option) (*route53.ChangeResourceRecordSetsOutput, error)
}

// Provider implements provider.Provider against Route 53 hosted zones.
type Provider struct {
	client route53API
	log    *slog.Logger
}

// New returns a Provider using a client built from p.
func New(p client.ConfigProvider, log *slog.Logger) *Provider {
	return newWithClient(route53.New(p), log)
}

// newWithClient constructs a Provider with an injected client for testing.
func newWithClient(c route53API, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{client: c, log: log}
}

// Records lists at most one record set starting at (name, recordType).
// Route 53 returns the first record set at or after the start position, which
// may belong to a different name.
func (p *Provider) Records(ctx context.Context, zoneID, name, recordType string) ([]*endpoint.Endpoint, error) {
	out, err := p.client.ListResourceRecordSetsWithContext(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(zoneID),
		StartRecordName: aws.String(name),
		StartRecordType: aws.String(recordType),
		MaxItems:        aws.String("1"),
	})
	if err != nil {
		return nil, fmt.Errorf("list %s %s in zone %s: %w", name, recordType, zoneID, err)
	}
	eps := make([]*endpoint.Endpoint, 0, len(out.ResourceRecordSets))
	for _, rrs := range out.ResourceRecordSets {
		eps = append(eps, toEndpoint(rrs))
	}
	return eps, nil
}

// ApplyChange submits one change as its own ChangeResourceRecordSets batch.
func (p *Provider) ApplyChange(ctx context.Context, change *plan.ChangeRequest) error {
	out, err := p.client.ChangeResourceRecordSetsWithContext(ctx, ChangeInput(change))
	if err != nil {
		return fmt.Errorf("%s %s in zone %s: %w", change.Action, change.Record.DNSName, change.ZoneID, err)
	}
	if out != nil && out.ChangeInfo != nil {
		p.log.Debug("route53 change submitted",
			"zone", change.ZoneID,
			"change_id", aws.StringValue(out.ChangeInfo.Id),
			"status", aws.StringValue(out.ChangeInfo.Status))
	}
	return nil
}

// ChangeInput builds the ChangeResourceRecordSets request for change.
func ChangeInput(change *plan.ChangeRequest) *route53.ChangeResourceRecordSetsInput {
	return &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(change.ZoneID),
		ChangeBatch: &route53.ChangeBatch{
			Comment: aws.String(change.Comment),
			Changes: []*route53.Change{{
				Action:            aws.String(string(change.Action)),
				ResourceRecordSet: toRecordSet(change.Record),
			}},
		},
	}
}

// toEndpoint converts a Route 53 record set. Alias and routing metadata are
// kept in labels so a delete can send the record set back unchanged.
func toEndpoint(rrs *route53.ResourceRecordSet) *endpoint.Endpoint {
	targets := make([]string, 0, len(rrs.ResourceRecords))
	for _, rr := range rrs.ResourceRecords {
		targets = append(targets, aws.StringValue(rr.Value))
	}
	labels := map[string]string{}
	if at := rrs.AliasTarget; at != nil {
		labels[endpoint.LabelAliasDNSName] = aws.StringValue(at.DNSName)
		labels[endpoint.LabelAliasHostedZoneID] = aws.StringValue(at.HostedZoneId)
		labels[endpoint.LabelAliasEvaluateHealth] = strconv.FormatBool(aws.BoolValue(at.EvaluateTargetHealth))
	}
	if rrs.SetIdentifier != nil {
		labels[endpoint.LabelSetIdentifier] = aws.StringValue(rrs.SetIdentifier)
	}
	return endpoint.New(
		unescapeName(aws.StringValue(rrs.Name)),
		targets,
		aws.StringValue(rrs.Type),
		aws.Int64Value(rrs.TTL),
		labels,
	)
}

func toRecordSet(ep *endpoint.Endpoint) *route53.ResourceRecordSet {
	rrs := &route53.ResourceRecordSet{
		Name: aws.String(ep.DNSName),
		Type: aws.String(ep.RecordType),
	}
	if id, ok := ep.Labels[endpoint.LabelSetIdentifier]; ok {
		rrs.SetIdentifier = aws.String(id)
	}
	if ep.IsAlias() {
		eval, _ := strconv.ParseBool(ep.Labels[endpoint.LabelAliasEvaluateHealth])
		rrs.AliasTarget = &route53.AliasTarget{
			DNSName:              aws.String(ep.Labels[endpoint.LabelAliasDNSName]),
			HostedZoneId:         aws.String(ep.Labels[endpoint.LabelAliasHostedZoneID]),
			EvaluateTargetHealth: aws.Bool(eval),
		}
		return rrs
	}
	rrs.TTL = aws.Int64(ep.TTL)
	for _, t := range ep.Targets {
		rrs.ResourceRecords = append(rrs.ResourceRecords, &route53.ResourceRecord{Value: aws.String(t)})
	}
	return rrs
}

// unescapeName decodes the \NNN octal escapes Route 53 uses for characters
// outside [a-z0-9-_.], e.g. "\052" for "*".
func unescapeName(name string) string {
	if !strings.Contains(name, `\`) {
		return name
	}
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if name[i] == '\\' && i+3 < len(name) {
			if v, err := strconv.ParseUint(name[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(name[i])
	}
	return b.String()
}
