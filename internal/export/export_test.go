package export

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/evanofslack/dns-whitelist-sync/internal/config"
	"github.com/evanofslack/dns-whitelist-sync/internal/entry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listAdaptor struct {
	err error
}

func (a listAdaptor) Schema(entries []entry.Entry, name string) ([]string, error) {
	if a.err != nil {
		return nil, a.err
	}
	return append([]string{name}, entry.Addresses(entries)...), nil
}

type listRepo struct {
	saved       []string
	destination string
	err         error
}

func (r *listRepo) Save(ctx context.Context, schema []string, destination string) error {
	r.saved = schema
	r.destination = destination
	return r.err
}

func TestPairExport(t *testing.T) {
	repo := &listRepo{}
	e := Pair[[]string](listAdaptor{}, repo)

	entries := []entry.Entry{{Name: "api", LatestIP: "10.0.0.5"}}
	require.NoError(t, e.Export(context.Background(), entries, Params{Name: "office", Destination: "/tmp/out"}))

	assert.Equal(t, []string{"office", "10.0.0.5"}, repo.saved)
	assert.Equal(t, "/tmp/out", repo.destination)
}

func TestPairExportRenderFailureSkipsSave(t *testing.T) {
	boom := errors.New("boom")
	repo := &listRepo{}
	e := Pair[[]string](listAdaptor{err: boom}, repo)

	err := e.Export(context.Background(), nil, Params{})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, repo.saved)
}

func TestPairRenderSkipsSave(t *testing.T) {
	repo := &listRepo{}
	e := Pair[[]string](listAdaptor{}, repo)

	schema, err := e.Render([]entry.Entry{{Name: "api", LatestIP: "10.0.0.5"}}, Params{Name: "office", Destination: "/tmp/out"})
	require.NoError(t, err)
	assert.Equal(t, []string{"office", "10.0.0.5"}, schema)
	assert.Nil(t, repo.saved)

	_, err = Pair[[]string](listAdaptor{err: ErrNoAddresses}, repo).Render(nil, Params{})
	assert.ErrorIs(t, err, ErrNoAddresses)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	repo := &listRepo{}
	r.Register(Traefik, Pair[[]string](listAdaptor{}, repo), MiddlewareAndPath)
	r.Register(Nginx, Pair[[]string](listAdaptor{}, repo), nil)

	_, params, err := r.Lookup(Traefik)
	require.NoError(t, err)
	assert.Equal(t, Params{Name: "mw", Destination: "/out.yml"}, params(config.Whitelist{Middleware: "mw", Path: "/out.yml", List: "ignored"}))

	_, params, err = r.Lookup(Nginx)
	require.NoError(t, err)
	assert.Equal(t, Params{}, params(config.Whitelist{Path: "/x"}))

	_, _, err = r.Lookup(CloudflareList)
	assert.ErrorIs(t, err, ErrUnknownSchema)

	assert.Equal(t, []SchemaType{Nginx, Traefik}, r.Types())
}

func TestParamFuncs(t *testing.T) {
	w := config.Whitelist{Middleware: "mw", Path: "/p", List: "office", Zone: "example.com", Record: "allow"}

	assert.Equal(t, Params{Destination: "/p"}, PathOnly(w))
	assert.Equal(t, Params{Name: "mw", Destination: "mw"}, MiddlewareID(w))
	assert.Equal(t, Params{Destination: "office"}, ListDestination(w))
	assert.Equal(t, Params{Name: "allow", Destination: "example.com"}, RecordInZone(w))
}

func TestExportErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := error(&ExportError{Schema: Nginx, Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "export nginx: disk full", err.Error())
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "allow.conf")

	require.NoError(t, WriteFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "first")
		return err
	}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(b))

	err = WriteFile(path, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return errors.New("encode failed")
	})
	require.Error(t, err)
	b, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(b))
}

func TestAddressesAndPrefixes(t *testing.T) {
	_, err := Addresses([]entry.Entry{{Name: "pending"}})
	assert.ErrorIs(t, err, ErrNoAddresses)

	addrs, err := Addresses([]entry.Entry{{Name: "a", LatestIP: "10.0.0.5"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.5"}, addrs)

	p, err := HostPrefix("10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5/32", p)

	p, err = HostPrefix("2001:db8::1")
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::1/128", p)

	_, err = HostPrefix("not-an-ip")
	assert.Error(t, err)
}

func TestWriteFileRequiresPath(t *testing.T) {
	err := WriteFile("", func(io.Writer) error { return nil })
	assert.ErrorIs(t, err, ErrNoDestination)
}
