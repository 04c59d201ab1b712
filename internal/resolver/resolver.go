package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/evanofslack/dns-whitelist-sync/internal/metrics"
	"github.com/miekg/dns"
)

const (
	resolvConf         = "/etc/resolv.conf"
	fallbackNameserver = "1.1.1.1:53"
	defaultTimeout     = 5 * time.Second
	mappedPrefix       = "::ffff:"
)

var ErrNoAddresses = errors.New("no addresses found")

type Resolver interface {
	Resolve(ctx context.Context, fqdn string) ([]string, error)
}

// Func adapts a plain function to a Resolver.
type Func func(ctx context.Context, fqdn string) ([]string, error)

func (f Func) Resolve(ctx context.Context, fqdn string) ([]string, error) {
	return f(ctx, fqdn)
}

type ResolutionError struct {
	FQDN string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.FQDN, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

type exchanger interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, address string) (*dns.Msg, time.Duration, error)
}

type Options struct {
	// Nameservers as host or host:port. Defaults to resolv.conf.
	Nameservers []string
	Timeout     time.Duration
	Flusher     CacheFlusher
	Metrics     *metrics.Metrics
}

// DNSResolver queries nameservers directly, so answers never come from an
// in-process cache.
type DNSResolver struct {
	client      exchanger
	nameservers []string
	flusher     CacheFlusher
	metrics     *metrics.Metrics
}

func New(opts Options) *DNSResolver {
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Flusher == nil {
		opts.Flusher = NoopFlusher{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(false)
	}
	nameservers := opts.Nameservers
	if len(nameservers) == 0 {
		nameservers = systemNameservers()
	}
	return &DNSResolver{
		client:      &dns.Client{Timeout: opts.Timeout},
		nameservers: normalizeNameservers(nameservers),
		flusher:     opts.Flusher,
		metrics:     opts.Metrics,
	}
}

// Resolve returns the A records for fqdn, or the AAAA records when there are
// no A records.
func (r *DNSResolver) Resolve(ctx context.Context, fqdn string) ([]string, error) {
	if err := r.flusher.Flush(ctx); err != nil {
		slog.Debug("Failed to flush resolver cache", "error", err)
	}

	addrs, err := r.lookup(ctx, fqdn, dns.TypeA)
	if err != nil {
		return nil, &ResolutionError{FQDN: fqdn, Err: err}
	}
	if len(addrs) == 0 {
		slog.Debug("No IPv4 addresses, falling back to IPv6", "fqdn", fqdn)
		addrs, err = r.lookup(ctx, fqdn, dns.TypeAAAA)
		if err != nil {
			return nil, &ResolutionError{FQDN: fqdn, Err: err}
		}
	}

	addrs = Normalize(addrs)
	if len(addrs) == 0 {
		return nil, &ResolutionError{FQDN: fqdn, Err: ErrNoAddresses}
	}
	return addrs, nil
}

// lookup asks each nameserver in turn until one gives a usable answer.
// NXDOMAIN is a usable answer with no addresses.
func (r *DNSResolver) lookup(ctx context.Context, fqdn string, qtype uint16) ([]string, error) {
	qname := dns.TypeToString[qtype]
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(fqdn), qtype)
	m.SetEdns0(4096, false)

	var lastErr error
	for _, ns := range r.nameservers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, _, err := r.client.ExchangeContext(ctx, m, ns)
		if err != nil {
			r.metrics.IncDNSQuery(qname, false)
			lastErr = fmt.Errorf("query %s %s: %w", qname, ns, err)
			continue
		}
		if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
			r.metrics.IncDNSQuery(qname, false)
			lastErr = fmt.Errorf("query %s %s: rcode %s", qname, ns, dns.RcodeToString[resp.Rcode])
			continue
		}
		r.metrics.IncDNSQuery(qname, true)
		return extractAddrs(resp, qtype), nil
	}
	if lastErr == nil {
		lastErr = errors.New("no nameservers configured")
	}
	return nil, lastErr
}

func extractAddrs(resp *dns.Msg, qtype uint16) []string {
	var out []string
	for _, rr := range resp.Answer {
		switch rec := rr.(type) {
		case *dns.A:
			if qtype == dns.TypeA {
				out = append(out, rec.A.String())
			}
		case *dns.AAAA:
			if qtype == dns.TypeAAAA {
				out = append(out, rec.AAAA.String())
			}
		}
	}
	return out
}

// Normalize strips the ::ffff: prefix from IPv4-mapped IPv6 addresses.
func Normalize(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, normalizeAddr(a))
	}
	return out
}

func normalizeAddr(addr string) string {
	if len(addr) <= len(mappedPrefix) || !strings.EqualFold(addr[:len(mappedPrefix)], mappedPrefix) {
		return addr
	}
	v4 := addr[len(mappedPrefix):]
	if ip, err := netip.ParseAddr(v4); err == nil && ip.Is4() {
		return v4
	}
	return addr
}

func systemNameservers() []string {
	cfg, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil || len(cfg.Servers) == 0 {
		slog.Warn("fail read nameservers, using fallback", "path", resolvConf, "fallback", fallbackNameserver, "error", err)
		return []string{fallbackNameserver}
	}
	servers := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers = append(servers, net.JoinHostPort(s, cfg.Port))
	}
	return servers
}

func normalizeNameservers(servers []string) []string {
	out := make([]string, 0, len(servers))
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(strings.Trim(s, "[]"), "53")
		}
		out = append(out, s)
	}
	return out
}
