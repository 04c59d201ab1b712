package export

import (
	"context"
	"fmt"

	"github.com/evanofslack/dns-whitelist-sync/internal/config"
	"github.com/evanofslack/dns-whitelist-sync/internal/entry"
)

// SchemaType selects the adaptor and repository for a whitelist output.
type SchemaType string

const (
	Traefik        SchemaType = "traefik"
	TraefikV2      SchemaType = "traefik-v2"
	Nginx          SchemaType = "nginx"
	Caddy          SchemaType = "caddy"
	CloudflareList SchemaType = "cloudflare-list"
	DNSRecords     SchemaType = "dns"
)

// Params carries the schema-specific settings of one output. Schema types
// that do not use a field receive the empty string.
type Params struct {
	Name        string
	Destination string
}

type ParamFunc func(w config.Whitelist) Params

// Adaptor renders entries into a schema of type S.
type Adaptor[S any] interface {
	Schema(entries []entry.Entry, name string) (S, error)
}

// Repository persists a rendered schema to its destination.
type Repository[S any] interface {
	Save(ctx context.Context, schema S, destination string) error
}

// Exporter renders and persists in one step, hiding the schema type.
// Render stops before persisting.
type Exporter interface {
	Export(ctx context.Context, entries []entry.Entry, params Params) error
	Render(entries []entry.Entry, params Params) (any, error)
}

type pair[S any] struct {
	adaptor Adaptor[S]
	repo    Repository[S]
}

// Pair binds an adaptor to the repository that stores its output.
func Pair[S any](adaptor Adaptor[S], repo Repository[S]) Exporter {
	return pair[S]{adaptor: adaptor, repo: repo}
}

func (p pair[S]) Render(entries []entry.Entry, params Params) (any, error) {
	schema, err := p.adaptor.Schema(entries, params.Name)
	if err != nil {
		return nil, fmt.Errorf("render schema: %w", err)
	}
	return schema, nil
}

func (p pair[S]) Export(ctx context.Context, entries []entry.Entry, params Params) error {
	schema, err := p.adaptor.Schema(entries, params.Name)
	if err != nil {
		return fmt.Errorf("render schema: %w", err)
	}
	if err := p.repo.Save(ctx, schema, params.Destination); err != nil {
		return fmt.Errorf("save schema: %w", err)
	}
	return nil
}

type ExportError struct {
	Schema SchemaType
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Schema, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
