package reconcile

import (
	"github.com/evanofslack/dns-whitelist-sync/internal/entry"
	"github.com/evanofslack/dns-whitelist-sync/internal/export"
	"go.uber.org/multierr"
)

type Results struct {
	Updated         []entry.Entry
	ResolveFailures []Failure
	Exported        []export.SchemaType
	// Rendered lists outputs rendered but not saved in dry run mode.
	Rendered        []export.SchemaType
	Skipped         []export.SchemaType
	ExportFailures  []Failure
	// Panic is set when the tick body panicked and was cut short.
	Panic error
}

// Failure names the entry or schema type that failed.
type Failure struct {
	Name string
	Err  error
}

func (r Results) Failed() bool {
	return r.Panic != nil || len(r.ResolveFailures) > 0 || len(r.ExportFailures) > 0
}

// Err combines every failure of the tick.
func (r Results) Err() error {
	var err error
	for _, f := range r.ResolveFailures {
		err = multierr.Append(err, f.Err)
	}
	for _, f := range r.ExportFailures {
		err = multierr.Append(err, f.Err)
	}
	return multierr.Append(err, r.Panic)
}
