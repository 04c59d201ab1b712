package export

import (
	"errors"
	"net/netip"

	"github.com/evanofslack/dns-whitelist-sync/internal/entry"
)

// ErrNoAddresses is returned by adaptors when none of the allowed entries has
// resolved yet. Writing an empty allow list would lock everyone out.
var ErrNoAddresses = errors.New("no resolved addresses to export")

// Addresses is entry.Addresses, failing when nothing is left.
func Addresses(entries []entry.Entry) ([]string, error) {
	addrs := entry.Addresses(entries)
	if len(addrs) == 0 {
		return nil, ErrNoAddresses
	}
	return addrs, nil
}

// HostPrefix returns addr as a single-host CIDR, /32 or /128.
func HostPrefix(addr string) (string, error) {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return "", err
	}
	return netip.PrefixFrom(ip, ip.BitLen()).String(), nil
}
