package controller

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bkero/ec2-route53-sync/pkg/endpoint"
	"github.com/bkero/ec2-route53-sync/pkg/plan"
)

// The dry-run report mirrors the Route 53 ChangeResourceRecordSets request so
// that it can be replayed with the AWS CLI regardless of the provider in use.
type reportEntry struct {
	HostedZoneID string      `json:"HostedZoneId"`
	ChangeBatch  reportBatch `json:"ChangeBatch"`
}

type reportBatch struct {
	Comment string         `json:"Comment,omitempty"`
	Changes []reportChange `json:"Changes"`
}

type reportChange struct {
	Action            string          `json:"Action"`
	ResourceRecordSet reportRecordSet `json:"ResourceRecordSet"`
}

type reportRecordSet struct {
	Name            string        `json:"Name"`
	Type            string        `json:"Type"`
	SetIdentifier   string        `json:"SetIdentifier,omitempty"`
	TTL             *int64        `json:"TTL,omitempty"`
	ResourceRecords []reportValue `json:"ResourceRecords,omitempty"`
	AliasTarget     *reportAlias  `json:"AliasTarget,omitempty"`
}

type reportValue struct {
	Value string `json:"Value"`
}

type reportAlias struct {
	HostedZoneID         string `json:"HostedZoneId"`
	DNSName              string `json:"DNSName"`
	EvaluateTargetHealth bool   `json:"EvaluateTargetHealth"`
}

// Render formats changes as indented JSON, one request per change.
func Render(changes plan.Changes) (string, error) {
	entries := make([]reportEntry, 0, len(changes))
	for _, cr := range changes {
		entries = append(entries, reportEntry{
			HostedZoneID: cr.ZoneID,
			ChangeBatch: reportBatch{
				Comment: cr.Comment,
				Changes: []reportChange{{
					Action:            string(cr.Action),
					ResourceRecordSet: recordSetFor(cr.Record),
				}},
			},
		})
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func recordSetFor(ep *endpoint.Endpoint) reportRecordSet {
	rs := reportRecordSet{
		Name:          ep.DNSName,
		Type:          ep.RecordType,
		SetIdentifier: ep.Labels[endpoint.LabelSetIdentifier],
	}
	if ep.IsAlias() {
		eval, _ := strconv.ParseBool(ep.Labels[endpoint.LabelAliasEvaluateHealth])
		rs.AliasTarget = &reportAlias{
			HostedZoneID:         ep.Labels[endpoint.LabelAliasHostedZoneID],
			DNSName:              ep.Labels[endpoint.LabelAliasDNSName],
			EvaluateTargetHealth: eval,
		}
		return rs
	}
	ttl := ep.TTL
	rs.TTL = &ttl
	for _, t := range ep.Targets {
		rs.ResourceRecords = append(rs.ResourceRecords, reportValue{Value: t})
	}
	return rs
}

// ZoneLines renders each change as "<ACTION> <zone> <RR>" using zone-file
// syntax for the record.
func ZoneLines(changes plan.Changes) []string {
	var lines []string
	for _, cr := range changes {
		if cr.Record.IsAlias() {
			lines = append(lines, fmt.Sprintf("%s %s %s ALIAS %s",
				cr.Action, cr.ZoneID, endpoint.Fqdn(cr.Record.DNSName), cr.Record.Labels[endpoint.LabelAliasDNSName]))
			continue
		}
		rrs, err := cr.Record.RRs()
		if err != nil {
			lines = append(lines, fmt.Sprintf("%s %s %s ; %v", cr.Action, cr.ZoneID, cr.Record, err))
			continue
		}
		for _, rr := range rrs {
			lines = append(lines, fmt.Sprintf("%s %s %s", cr.Action, cr.ZoneID, rr.String()))
		}
	}
	return lines
}
