package fake

import (
	"context"
	"errors"
	"testing"

	"github.com/bkero/ec2-route53-sync/pkg/endpoint"
	"github.com/bkero/ec2-route53-sync/pkg/plan"
)

func ep(name, target string) *endpoint.Endpoint {
	return endpoint.New(name, []string{target}, endpoint.RecordTypeA, 5, nil)
}

func TestRecords_ExactMatch(t *testing.T) {
	p := New().Add("Z1", ep("a.example.com.", "1.2.3.4"))

	recs, err := p.Records(context.Background(), "Z1", "a.example.com.", endpoint.RecordTypeA)
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(recs) != 1 || recs[0].DNSName != "a.example.com." {
		t.Errorf("Records() = %v, want [a.example.com.]", recs)
	}
}

func TestRecords_NameCaseIgnored(t *testing.T) {
	p := New().Add("Z1", ep("a.example.com.", "1.2.3.4"))

	recs, err := p.Records(context.Background(), "Z1", "A.Example.COM.", endpoint.RecordTypeA)
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(recs) != 1 || recs[0].DNSName != "a.example.com." {
		t.Errorf("Records() = %v, want stored lowercase a.example.com.", recs)
	}
	if p.Get("Z1", "A.EXAMPLE.COM") == nil {
		t.Error("Get() with mixed case = nil, want the stored record")
	}
}

func TestRecords_NearestFollowingRecord(t *testing.T) {
	p := New().Add("Z1", ep("b.example.com.", "1.2.3.4"))

	recs, err := p.Records(context.Background(), "Z1", "a.example.com.", endpoint.RecordTypeA)
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(recs) != 1 || recs[0].DNSName != "b.example.com." {
		t.Errorf("Records() = %v, want nearest record b.example.com.", recs)
	}
}

func TestRecords_EmptyZone(t *testing.T) {
	recs, err := New().Records(context.Background(), "Z1", "a.example.com.", endpoint.RecordTypeA)
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("got %d records, want 0", len(recs))
	}
}

func TestRecords_InjectedError(t *testing.T) {
	p := New()
	boom := errors.New("boom")
	p.FailLookups("Z1", boom)
	if _, err := p.Records(context.Background(), "Z1", "a.example.com.", endpoint.RecordTypeA); !errors.Is(err, boom) {
		t.Errorf("Records() error = %v, want boom", err)
	}
	if _, err := p.Records(context.Background(), "Z2", "a.example.com.", endpoint.RecordTypeA); err != nil {
		t.Errorf("Records() on other zone error = %v, want nil", err)
	}
	if p.LookupCount() != 2 {
		t.Errorf("LookupCount() = %d, want 2", p.LookupCount())
	}
}

func TestApplyChange_UpsertAndDelete(t *testing.T) {
	p := New()
	ctx := context.Background()

	up := &plan.ChangeRequest{ZoneID: "Z1", Action: plan.ActionUpsert, Record: ep("a.example.com.", "1.2.3.4")}
	if err := p.ApplyChange(ctx, up); err != nil {
		t.Fatalf("upsert error = %v", err)
	}
	if got := p.Get("Z1", "a.example.com"); got == nil || got.Targets[0] != "1.2.3.4" {
		t.Fatalf("Get() = %v, want 1.2.3.4", got)
	}

	del := &plan.ChangeRequest{ZoneID: "Z1", Action: plan.ActionDelete, Record: ep("a.example.com.", "1.2.3.4")}
	if err := p.ApplyChange(ctx, del); err != nil {
		t.Fatalf("delete error = %v", err)
	}
	if p.RecordCount("Z1") != 0 {
		t.Errorf("RecordCount() = %d, want 0", p.RecordCount("Z1"))
	}
	if h := p.History(); len(h) != 2 || h[0] != up || h[1] != del {
		t.Errorf("History() = %v, want [upsert delete]", h)
	}
}

func TestApplyChange_DeleteMissing(t *testing.T) {
	del := &plan.ChangeRequest{ZoneID: "Z1", Action: plan.ActionDelete, Record: ep("a.example.com.", "1.2.3.4")}
	if err := New().ApplyChange(context.Background(), del); err == nil {
		t.Error("expected error deleting a missing record")
	}
}

func TestApplyChange_InjectedError(t *testing.T) {
	p := New()
	boom := errors.New("boom")
	p.FailApplies("Z1", boom)
	up := &plan.ChangeRequest{ZoneID: "Z1", Action: plan.ActionUpsert, Record: ep("a.example.com.", "1.2.3.4")}
	if err := p.ApplyChange(context.Background(), up); !errors.Is(err, boom) {
		t.Errorf("ApplyChange() error = %v, want boom", err)
	}
	if len(p.History()) != 0 {
		t.Error("failed change should not be recorded")
	}
}
