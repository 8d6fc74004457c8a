package aws

import (
	"context"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/yairfalse/raivaus/types"
)

type fakeRoute53 struct {
	zones   []r53types.HostedZone
	records map[string][]r53types.ResourceRecordSet

	deletedSets  int
	deletedZones []string
}

func (f *fakeRoute53) ListHostedZones(ctx context.Context, params *route53.ListHostedZonesInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesOutput, error) {
	return &route53.ListHostedZonesOutput{HostedZones: f.zones}, nil
}

func (f *fakeRoute53) ListResourceRecordSets(ctx context.Context, params *route53.ListResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error) {
	return &route53.ListResourceRecordSetsOutput{
		ResourceRecordSets: f.records[awssdk.ToString(params.HostedZoneId)],
	}, nil
}

func (f *fakeRoute53) ChangeResourceRecordSets(ctx context.Context, params *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error) {
	f.deletedSets += len(params.ChangeBatch.Changes)
	return &route53.ChangeResourceRecordSetsOutput{}, nil
}

func (f *fakeRoute53) DeleteHostedZone(ctx context.Context, params *route53.DeleteHostedZoneInput, optFns ...func(*route53.Options)) (*route53.DeleteHostedZoneOutput, error) {
	f.deletedZones = append(f.deletedZones, awssdk.ToString(params.Id))
	return &route53.DeleteHostedZoneOutput{}, nil
}

func TestRecordSetID(t *testing.T) {
	id := recordSetID("Z123", "api.example.com.", r53types.RRTypeA)
	zoneID, name, recordType, err := splitRecordSetID(id)
	if err != nil {
		t.Fatalf("splitRecordSetID() error = %v", err)
	}
	if zoneID != "Z123" || name != "api.example.com." || recordType != "A" {
		t.Errorf("round trip gave %s %s %s", zoneID, name, recordType)
	}

	if _, _, _, err := splitRecordSetID("garbage"); err == nil {
		t.Error("expected error for malformed id")
	}
}

func TestRecordSetListSkipsApexSystemRecords(t *testing.T) {
	fake := &fakeRoute53{
		zones: []r53types.HostedZone{
			{Id: awssdk.String("/hostedzone/Z123"), Name: awssdk.String("example.com.")},
		},
		records: map[string][]r53types.ResourceRecordSet{
			"Z123": {
				{Name: awssdk.String("example.com."), Type: r53types.RRTypeNs},
				{Name: awssdk.String("example.com."), Type: r53types.RRTypeSoa},
				{Name: awssdk.String("api.example.com."), Type: r53types.RRTypeA},
				{Name: awssdk.String("sub.example.com."), Type: r53types.RRTypeNs},
			},
		},
	}
	provider := NewRecordSetProvider(poolWith(&Clients{Route53: fake}), "eu-west-1")

	records, err := provider.List(context.Background(), "dev", "eu-west-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records (apex NS/SOA skipped), got %d", len(records))
	}

	// Delegation NS records for subzones are deletable and must be kept.
	found := false
	for _, rec := range records {
		if rec.Name == "sub.example.com." {
			found = true
		}
	}
	if !found {
		t.Error("subzone NS delegation should be listed")
	}
}

func TestRecordSetListOnlyInHomeRegion(t *testing.T) {
	fake := &fakeRoute53{
		zones: []r53types.HostedZone{
			{Id: awssdk.String("/hostedzone/Z123"), Name: awssdk.String("example.com.")},
		},
	}
	provider := NewRecordSetProvider(poolWith(&Clients{Route53: fake}), "eu-west-1")

	records, err := provider.List(context.Background(), "dev", "us-east-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if records != nil {
		t.Errorf("expected no records outside home region, got %d", len(records))
	}
}

func TestRecordSetDelete(t *testing.T) {
	fake := &fakeRoute53{
		zones: []r53types.HostedZone{
			{Id: awssdk.String("/hostedzone/Z123"), Name: awssdk.String("example.com.")},
		},
		records: map[string][]r53types.ResourceRecordSet{
			"Z123": {
				{Name: awssdk.String("api.example.com."), Type: r53types.RRTypeA, TTL: awssdk.Int64(300)},
			},
		},
	}
	provider := NewRecordSetProvider(poolWith(&Clients{Route53: fake}), "eu-west-1")

	records, err := provider.List(context.Background(), "dev", "eu-west-1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	outcome := provider.Delete(context.Background(), records[0].ID)
	if !outcome.Succeeded() {
		t.Fatalf("Delete() = %v, want success", outcome)
	}
	if fake.deletedSets != 1 {
		t.Errorf("expected 1 change submitted, got %d", fake.deletedSets)
	}

	// The cache is gone, a second delete is idempotent success.
	outcome = provider.Delete(context.Background(), records[0].ID)
	if outcome.Kind != types.OutcomeNotFound {
		t.Errorf("second Delete() = %v, want not_found", outcome.Kind)
	}
}

func TestTrimZoneID(t *testing.T) {
	if got := trimZoneID("/hostedzone/Z123"); got != "Z123" {
		t.Errorf("trimZoneID() = %s, want Z123", got)
	}
	if got := trimZoneID("Z123"); got != "Z123" {
		t.Errorf("trimZoneID() = %s, want Z123", got)
	}
}
