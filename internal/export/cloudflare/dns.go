package cloudflare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/evanofslack/dns-whitelist-sync/internal/entry"
	"github.com/evanofslack/dns-whitelist-sync/internal/export"
	"github.com/evanofslack/dns-whitelist-sync/internal/metrics"
	"github.com/libdns/libdns"
)

var (
	ErrNoRecordName = errors.New("record name is required")
	ErrNoZone       = errors.New("zone is required")
)

// RecordAdaptor publishes the allowed addresses as an A/AAAA record set, for
// consumers that build their allow list from a DNS name.
type RecordAdaptor struct {
	TTL time.Duration
}

func (ra RecordAdaptor) Schema(entries []entry.Entry, name string) ([]libdns.Record, error) {
	if name == "" {
		return nil, ErrNoRecordName
	}
	addrs, err := export.Addresses(entries)
	if err != nil {
		return nil, err
	}
	records := make([]libdns.Record, 0, len(addrs))
	for _, addr := range addrs {
		ip, err := netip.ParseAddr(addr)
		if err != nil {
			return nil, fmt.Errorf("parse address %s: %w", addr, err)
		}
		records = append(records, &libdns.Address{Name: name, IP: ip, TTL: ra.TTL})
	}
	return records, nil
}

type dnsAPI interface {
	ZoneIDByName(zoneName string) (string, error)
	ListDNSRecords(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.ListDNSRecordsParams) ([]cloudflare.DNSRecord, *cloudflare.ResultInfo, error)
	CreateDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.CreateDNSRecordParams) (cloudflare.DNSRecord, error)
	DeleteDNSRecord(ctx context.Context, rc *cloudflare.ResourceContainer, recordID string) error
}

// RecordRepository converges the A/AAAA records of one name in a zone to the
// rendered set. Records of other types under the same name are left alone.
type RecordRepository struct {
	api     dnsAPI
	metrics *metrics.Metrics

	mu    sync.Mutex
	zones map[string]string // Cache zone name to ID mapping
}

func NewRecordRepository(api dnsAPI, metrics *metrics.Metrics) *RecordRepository {
	return &RecordRepository{
		api:     api,
		metrics: metrics,
		zones:   make(map[string]string),
	}
}

func (r *RecordRepository) Save(ctx context.Context, records []libdns.Record, zone string) error {
	if zone == "" {
		return ErrNoZone
	}
	if len(records) == 0 {
		return export.ErrNoAddresses
	}
	zoneID, err := r.zoneID(zone)
	if err != nil {
		return err
	}
	rc := cloudflare.ZoneIdentifier(zoneID)
	name := strings.TrimSuffix(libdns.AbsoluteName(records[0].RR().Name, zone), ".")

	existing, err := r.getRecords(ctx, rc, zone, name)
	if err != nil {
		return err
	}

	desired := make([]libdns.RR, 0, len(records))
	for _, rec := range records {
		desired = append(desired, rec.RR())
	}
	create, remove := planRecords(existing, desired)

	// Create before delete so the name never resolves to an empty set.
	for _, rr := range create {
		if err := r.createRecord(ctx, rc, zone, name, rr); err != nil {
			return err
		}
	}
	for _, rec := range remove {
		if err := r.deleteRecord(ctx, rc, zone, rec); err != nil {
			return err
		}
	}
	slog.Debug("Synced cloudflare records", "zone", zone, "name", name, "created", len(create), "deleted", len(remove))
	return nil
}

func (r *RecordRepository) zoneID(zone string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.zones[zone]; ok {
		return id, nil
	}
	id, err := r.api.ZoneIDByName(zone)
	r.metrics.IncCloudflareRequest("read", err == nil)
	if err != nil {
		return "", fmt.Errorf("failed to get zone ID for %s: %w", zone, err)
	}
	r.zones[zone] = id
	return id, nil
}

func (r *RecordRepository) getRecords(ctx context.Context, rc *cloudflare.ResourceContainer, zone, name string) ([]cloudflare.DNSRecord, error) {
	var all []cloudflare.DNSRecord
	page := 1
	for {
		params := cloudflare.ListDNSRecordsParams{
			Name: name,
			ResultInfo: cloudflare.ResultInfo{
				Page:    page,
				PerPage: 100,
			},
		}
		records, resultInfo, err := r.api.ListDNSRecords(ctx, rc, params)
		if err != nil {
			r.metrics.IncCloudflareRequest("read", false)
			return nil, fmt.Errorf("failed to list DNS records: %w", err)
		}
		all = append(all, records...)
		if resultInfo == nil || page >= resultInfo.TotalPages {
			break
		}
		page++
	}
	r.metrics.IncCloudflareRequest("read", true)

	out := all[:0]
	for _, rec := range all {
		if rec.Type == "A" || rec.Type == "AAAA" {
			out = append(out, rec)
		}
	}
	slog.Debug("Retrieved DNS records", "zone", zone, "name", name, "count", len(out))
	return out, nil
}

func (r *RecordRepository) createRecord(ctx context.Context, rc *cloudflare.ResourceContainer, zone, name string, rr libdns.RR) error {
	slog.Info("Creating DNS record", "zone", zone, "name", name, "type", rr.Type, "data", rr.Data)
	params := cloudflare.CreateDNSRecordParams{
		Type:    rr.Type,
		Name:    name,
		Content: rr.Data,
		TTL:     cloudflareTTL(rr.TTL),
	}
	_, err := r.api.CreateDNSRecord(ctx, rc, params)
	r.metrics.IncCloudflareRequest("create", err == nil)
	if err != nil {
		return fmt.Errorf("failed to create DNS record: %w", err)
	}
	return nil
}

func (r *RecordRepository) deleteRecord(ctx context.Context, rc *cloudflare.ResourceContainer, zone string, rec cloudflare.DNSRecord) error {
	slog.Info("Deleting DNS record", "zone", zone, "name", rec.Name, "type", rec.Type, "data", rec.Content)
	err := r.api.DeleteDNSRecord(ctx, rc, rec.ID)
	r.metrics.IncCloudflareRequest("delete", err == nil)
	if err != nil {
		return fmt.Errorf("failed to delete DNS record: %w", err)
	}
	return nil
}

// planRecords compares by type and canonical address text.
func planRecords(existing []cloudflare.DNSRecord, desired []libdns.RR) (create []libdns.RR, remove []cloudflare.DNSRecord) {
	want := make(map[string]bool, len(desired))
	for _, rr := range desired {
		want[recordKey(rr.Type, rr.Data)] = true
	}
	have := make(map[string]bool, len(existing))
	for _, rec := range existing {
		k := recordKey(rec.Type, rec.Content)
		if want[k] && !have[k] {
			have[k] = true
			continue
		}
		remove = append(remove, rec)
	}
	for _, rr := range desired {
		k := recordKey(rr.Type, rr.Data)
		if !have[k] {
			have[k] = true
			create = append(create, rr)
		}
	}
	return create, remove
}

func recordKey(typ, data string) string {
	if ip, err := netip.ParseAddr(data); err == nil {
		data = ip.String()
	}
	return typ + "/" + data
}

// Cloudflare treats a TTL of 1 as automatic.
func cloudflareTTL(ttl time.Duration) int {
	if ttl < time.Second {
		return 1
	}
	return int(ttl.Seconds())
}
