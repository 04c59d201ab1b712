package export

import (
	"errors"
	"sort"

	"github.com/evanofslack/dns-whitelist-sync/internal/config"
)

var ErrUnknownSchema = errors.New("no exporter registered for schema type")

type registration struct {
	exporter Exporter
	params   ParamFunc
}

// Registry maps schema types to their exporter. It is filled once at startup
// and only read afterwards.
type Registry struct {
	exporters map[SchemaType]registration
}

func NewRegistry() *Registry {
	return &Registry{exporters: make(map[SchemaType]registration)}
}

// Register adds or replaces the exporter for t. A nil params func means the
// schema type takes no parameters.
func (r *Registry) Register(t SchemaType, e Exporter, params ParamFunc) {
	if params == nil {
		params = NoParams
	}
	r.exporters[t] = registration{exporter: e, params: params}
}

func (r *Registry) Lookup(t SchemaType) (Exporter, ParamFunc, error) {
	reg, ok := r.exporters[t]
	if !ok {
		return nil, nil, ErrUnknownSchema
	}
	return reg.exporter, reg.params, nil
}

func (r *Registry) Types() []SchemaType {
	types := make([]SchemaType, 0, len(r.exporters))
	for t := range r.exporters {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func NoParams(config.Whitelist) Params {
	return Params{}
}

func MiddlewareAndPath(w config.Whitelist) Params {
	return Params{Name: w.Middleware, Destination: w.Path}
}

func PathOnly(w config.Whitelist) Params {
	return Params{Destination: w.Path}
}

// MiddlewareID uses the middleware identifier both to name the rendered
// object and to address it at the destination.
func MiddlewareID(w config.Whitelist) Params {
	return Params{Name: w.Middleware, Destination: w.Middleware}
}

func ListDestination(w config.Whitelist) Params {
	return Params{Destination: w.List}
}

func RecordInZone(w config.Whitelist) Params {
	return Params{Name: w.Record, Destination: w.Zone}
}
