package traefik

import (
	"context"
	"fmt"
	"io"

	"github.com/evanofslack/dns-whitelist-sync/internal/entry"
	"github.com/evanofslack/dns-whitelist-sync/internal/export"
	"gopkg.in/yaml.v3"
)

const (
	defaultMiddleware = "whitelist"
	header            = "# Generated by dns-whitelist-sync. Changes will be overwritten.\n"
)

// Config is the slice of Traefik's dynamic configuration that declares an
// ipAllowList middleware. Traefik's file provider merges it with the rest.
type Config struct {
	HTTP HTTP `yaml:"http"`
}

type HTTP struct {
	Middlewares map[string]Middleware `yaml:"middlewares"`
}

// Middleware sets exactly one of its fields. Traefik v2 only reads
// ipWhiteList, v3 only ipAllowList.
type Middleware struct {
	IPAllowList *IPAllowList `yaml:"ipAllowList,omitempty"`
	IPWhiteList *IPAllowList `yaml:"ipWhiteList,omitempty"`
}

type IPAllowList struct {
	SourceRange []string `yaml:"sourceRange"`
}

// Adaptor renders the v3 middleware, or the v2 one when V2 is set.
type Adaptor struct {
	V2 bool
}

func (a Adaptor) Schema(entries []entry.Entry, name string) (Config, error) {
	if name == "" {
		name = defaultMiddleware
	}
	addrs, err := export.Addresses(entries)
	if err != nil {
		return Config{}, err
	}

	ranges := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		p, err := export.HostPrefix(addr)
		if err != nil {
			return Config{}, fmt.Errorf("parse address %s: %w", addr, err)
		}
		ranges = append(ranges, p)
	}

	allow := &IPAllowList{SourceRange: ranges}
	mw := Middleware{IPAllowList: allow}
	if a.V2 {
		mw = Middleware{IPWhiteList: allow}
	}
	return Config{
		HTTP: HTTP{
			Middlewares: map[string]Middleware{name: mw},
		},
	}, nil
}

// FileRepository writes the middleware as a YAML file for the file provider.
type FileRepository struct{}

func (FileRepository) Save(ctx context.Context, cfg Config, path string) error {
	return export.WriteFile(path, func(w io.Writer) error {
		if _, err := io.WriteString(w, header); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encode traefik config: %w", err)
		}
		return enc.Close()
	})
}
