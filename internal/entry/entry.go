package entry

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("entry not found")

// Entry is a tracked endpoint and the last two addresses it resolved to.
// An empty CurrentIP means the entry has resolved at most once.
type Entry struct {
	Name      string    `json:"name"`
	FQDN      string    `json:"fqdn"`
	CurrentIP string    `json:"currentIp,omitempty"`
	LatestIP  string    `json:"latestIp,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Shift records a new resolution, moving the latest address into the
// current slot.
func (e *Entry) Shift(ip string, at time.Time) {
	e.CurrentIP = e.LatestIP
	e.LatestIP = ip
	e.UpdatedAt = at
}

// Changed reports whether the last Shift moved the entry to a new address.
func (e Entry) Changed() bool {
	return e.CurrentIP != e.LatestIP
}

type Repository interface {
	// FindByNames returns the stored entries in the order of names, skipping
	// names that are not stored.
	FindByNames(ctx context.Context, names []string) ([]Entry, error)
	GetByName(ctx context.Context, name string) (Entry, error)
	AddOrUpdate(ctx context.Context, e Entry) error
	List(ctx context.Context) ([]Entry, error)
	Close() error
}

// Addresses returns the latest address of each entry in order, dropping
// entries that never resolved and repeated addresses.
func Addresses(entries []Entry) []string {
	seen := make(map[string]bool, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.LatestIP == "" || seen[e.LatestIP] {
			continue
		}
		seen[e.LatestIP] = true
		out = append(out, e.LatestIP)
	}
	return out
}
