package cloudflare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/evanofslack/dns-whitelist-sync/internal/entry"
	"github.com/evanofslack/dns-whitelist-sync/internal/export"
	"github.com/evanofslack/dns-whitelist-sync/internal/metrics"
)

// Cloudflare lists only take IPv6 as a prefix of /64 or shorter.
const ipv6ListPrefix = 64

var ErrNoList = errors.New("list name is required")

// ListAdaptor renders entries as items of a Cloudflare IP list, which
// firewall and WAF rules can reference as $name.
type ListAdaptor struct{}

func (ListAdaptor) Schema(entries []entry.Entry, _ string) ([]cloudflare.ListItemCreateRequest, error) {
	if _, err := export.Addresses(entries); err != nil {
		return nil, err
	}
	items := []cloudflare.ListItemCreateRequest{}
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.LatestIP == "" {
			continue
		}
		value, err := listValue(e.LatestIP)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.Name, err)
		}
		if seen[value] {
			continue
		}
		seen[value] = true
		items = append(items, cloudflare.ListItemCreateRequest{
			IP:      cloudflare.StringPtr(value),
			Comment: e.Name,
		})
	}
	return items, nil
}

func listValue(addr string) (string, error) {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return "", fmt.Errorf("parse address %s: %w", addr, err)
	}
	if ip.Is4() {
		return ip.String(), nil
	}
	return netip.PrefixFrom(ip, ipv6ListPrefix).Masked().String(), nil
}

type listAPI interface {
	ListLists(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.ListListsParams) ([]cloudflare.List, error)
	ReplaceListItems(ctx context.Context, rc *cloudflare.ResourceContainer, params cloudflare.ListReplaceItemsParams) ([]cloudflare.ListItem, error)
}

type ListRepository struct {
	api       listAPI
	accountID string
	metrics   *metrics.Metrics

	mu  sync.Mutex
	ids map[string]string // Cache list name to ID mapping
}

func NewListRepository(api listAPI, accountID string, metrics *metrics.Metrics) (*ListRepository, error) {
	if accountID == "" {
		return nil, fmt.Errorf("cloudflare account id required for lists")
	}
	return &ListRepository{
		api:       api,
		accountID: accountID,
		metrics:   metrics,
		ids:       make(map[string]string),
	}, nil
}

// Save replaces every item of the named list.
func (r *ListRepository) Save(ctx context.Context, items []cloudflare.ListItemCreateRequest, list string) error {
	if list == "" {
		return ErrNoList
	}
	start := time.Now()
	rc := cloudflare.AccountIdentifier(r.accountID)

	id, err := r.listID(ctx, rc, list)
	if err != nil {
		return err
	}

	_, err = r.api.ReplaceListItems(ctx, rc, cloudflare.ListReplaceItemsParams{ID: id, Items: items})
	r.metrics.IncCloudflareRequest("replace", err == nil)
	if err != nil {
		return fmt.Errorf("failed to replace list items: %w", err)
	}
	slog.Debug("Replaced cloudflare list items", "list", list, "count", len(items), "duration", time.Since(start))
	return nil
}

func (r *ListRepository) listID(ctx context.Context, rc *cloudflare.ResourceContainer, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[name]; ok {
		return id, nil
	}

	lists, err := r.api.ListLists(ctx, rc, cloudflare.ListListsParams{})
	r.metrics.IncCloudflareRequest("read", err == nil)
	if err != nil {
		return "", fmt.Errorf("failed to list lists: %w", err)
	}
	for _, l := range lists {
		if l.Name == name {
			if l.Kind != "" && l.Kind != "ip" {
				return "", fmt.Errorf("list %s has kind %s, want ip", name, l.Kind)
			}
			r.ids[name] = l.ID
			return l.ID, nil
		}
	}
	return "", fmt.Errorf("list %s not found in account", name)
}
