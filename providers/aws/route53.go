package aws

import (
	"context"
	"fmt"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/yairfalse/raivaus/types"
)

// recordSetID packs a record set into one ID of the form
// "zoneID/name/type". Record sets have no ID of their own in the API.
func recordSetID(zoneID, name string, recordType r53types.RRType) string {
	return fmt.Sprintf("%s/%s/%s", zoneID, name, recordType)
}

// splitRecordSetID is the inverse of recordSetID.
func splitRecordSetID(id string) (zoneID, name, recordType string, err error) {
	parts := strings.SplitN(id, "/", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("malformed record set id %q", id)
	}
	return parts[0], parts[1], parts[2], nil
}

// RecordSetProvider tears down DNS record sets. The zone's apex NS and
// SOA records cannot be deleted and are never listed.
type RecordSetProvider struct {
	session
	homeRegion string

	// sets caches the full record set per ID so the delete change batch
	// can echo the record's TTL and values.
	sets map[string]r53types.ResourceRecordSet
}

func NewRecordSetProvider(pool *ClientPool, homeRegion string) *RecordSetProvider {
	return &RecordSetProvider{
		session:    newSession(pool),
		homeRegion: homeRegion,
		sets:       make(map[string]r53types.ResourceRecordSet),
	}
}

func (p *RecordSetProvider) Type() string { return "record_set" }

func (p *RecordSetProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	if region != p.homeRegion {
		return nil, nil
	}
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	zones, err := listZones(ctx, c.Route53)
	if err != nil {
		return nil, err
	}

	var records []types.ResourceRecord
	for _, zone := range zones {
		zoneID := trimZoneID(awssdk.ToString(zone.Id))
		sets, err := p.listRecordSets(ctx, c, zoneID, awssdk.ToString(zone.Name))
		if err != nil {
			return nil, err
		}
		for _, rec := range sets {
			rec.Account = account
			rec.Region = region
			records = append(records, rec)
		}
	}
	return records, nil
}

func (p *RecordSetProvider) listRecordSets(ctx context.Context, c *Clients, zoneID, zoneName string) ([]types.ResourceRecord, error) {
	var records []types.ResourceRecord
	input := &route53.ListResourceRecordSetsInput{
		HostedZoneId: awssdk.String(zoneID),
	}
	for {
		out, err := c.Route53.ListResourceRecordSets(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list record sets for zone %s: %w", zoneID, err)
		}
		for _, set := range out.ResourceRecordSets {
			name := awssdk.ToString(set.Name)
			if isApexSystemRecord(set, zoneName) {
				continue
			}
			id := recordSetID(zoneID, name, set.Type)
			p.sets[id] = set
			records = append(records, types.ResourceRecord{
				Type: p.Type(),
				ID:   id,
				Name: name,
				Attributes: map[string]any{
					"zone_id":     zoneID,
					"record_type": string(set.Type),
				},
				References: types.NewReferenceSet(),
			})
		}
		if !out.IsTruncated {
			return records, nil
		}
		input.StartRecordName = out.NextRecordName
		input.StartRecordType = out.NextRecordType
		input.StartRecordIdentifier = out.NextRecordIdentifier
	}
}

// isApexSystemRecord reports whether the set is the zone's own NS or SOA
// record. Deleting those is rejected by the API.
func isApexSystemRecord(set r53types.ResourceRecordSet, zoneName string) bool {
	if set.Type != r53types.RRTypeNs && set.Type != r53types.RRTypeSoa {
		return false
	}
	return awssdk.ToString(set.Name) == zoneName
}

func (p *RecordSetProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	set, ok := p.sets[id]
	if !ok {
		return nil, fmt.Errorf("record set %s not found", id)
	}
	return map[string]any{
		"record_type": string(set.Type),
		"ttl":         awssdk.ToInt64(set.TTL),
	}, nil
}

func (p *RecordSetProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	zoneID, _, _, err := splitRecordSetID(id)
	if err != nil {
		return types.Fatal(err)
	}
	set, ok := p.sets[id]
	if !ok {
		return types.NotFound()
	}

	_, err = c.Route53.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: awssdk.String(zoneID),
		ChangeBatch: &r53types.ChangeBatch{
			Changes: []r53types.Change{
				{
					Action:            r53types.ChangeActionDelete,
					ResourceRecordSet: &set,
				},
			},
		},
	})
	outcome := outcomeFromError(err)
	if outcome.Succeeded() {
		delete(p.sets, id)
	}
	return outcome
}

func (p *RecordSetProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	return types.ClearResult{Kind: types.ClearAlreadyCleared}
}

// HostedZoneProvider tears down hosted zones once their record sets are
// gone. A zone still holding records comes back HostedZoneNotEmpty,
// which keeps it in the working set for the next pass.
type HostedZoneProvider struct {
	session
	homeRegion string
}

func NewHostedZoneProvider(pool *ClientPool, homeRegion string) *HostedZoneProvider {
	return &HostedZoneProvider{session: newSession(pool), homeRegion: homeRegion}
}

func (p *HostedZoneProvider) Type() string { return "hosted_zone" }

func (p *HostedZoneProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	if region != p.homeRegion {
		return nil, nil
	}
	c, err := p.bind(ctx, account, region)
	if err != nil {
		return nil, err
	}

	zones, err := listZones(ctx, c.Route53)
	if err != nil {
		return nil, err
	}

	var records []types.ResourceRecord
	for _, zone := range zones {
		records = append(records, types.ResourceRecord{
			Type:    p.Type(),
			ID:      trimZoneID(awssdk.ToString(zone.Id)),
			Name:    awssdk.ToString(zone.Name),
			Region:  region,
			Account: account,
			Attributes: map[string]any{
				"private": zone.Config != nil && zone.Config.PrivateZone,
			},
			References: types.NewReferenceSet(),
		})
	}
	return records, nil
}

func (p *HostedZoneProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	return map[string]any{}, nil
}

func (p *HostedZoneProvider) Delete(ctx context.Context, id string) types.Outcome {
	c, err := p.bound()
	if err != nil {
		return types.Failed(err)
	}
	_, err = c.Route53.DeleteHostedZone(ctx, &route53.DeleteHostedZoneInput{
		Id: awssdk.String(id),
	})
	return outcomeFromError(err)
}

func (p *HostedZoneProvider) ClearReference(ctx context.Context, id, reference string) types.ClearResult {
	return types.ClearResult{Kind: types.ClearAlreadyCleared}
}

// listZones pages through every hosted zone in the account.
func listZones(ctx context.Context, api Route53API) ([]r53types.HostedZone, error) {
	var zones []r53types.HostedZone
	input := &route53.ListHostedZonesInput{}
	for {
		out, err := api.ListHostedZones(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list hosted zones: %w", err)
		}
		zones = append(zones, out.HostedZones...)
		if !out.IsTruncated {
			return zones, nil
		}
		input.Marker = out.NextMarker
	}
}

// trimZoneID strips the "/hostedzone/" prefix the API returns on zone IDs.
func trimZoneID(id string) string {
	return strings.TrimPrefix(id, "/hostedzone/")
}
