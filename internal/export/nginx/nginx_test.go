package nginx

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/evanofslack/dns-whitelist-sync/internal/entry"
	"github.com/evanofslack/dns-whitelist-sync/internal/export"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdaptorAndWrite(t *testing.T) {
	acl, err := Adaptor{}.Schema([]entry.Entry{
		{Name: "api", LatestIP: "10.0.0.5"},
		{Name: "pending"},
		{Name: "api-alias", LatestIP: "10.0.0.5"},
		{Name: "office", LatestIP: "2001:db8::7"},
	}, "ignored")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, acl))

	want := "# Generated by dns-whitelist-sync. Changes will be overwritten.\n" +
		"allow 10.0.0.5; # api\n" +
		"allow 2001:db8::7; # office\n" +
		"deny all;\n"
	assert.Equal(t, want, buf.String())
}

func TestAdaptorNoAddresses(t *testing.T) {
	_, err := Adaptor{}.Schema(nil, "")
	assert.ErrorIs(t, err, export.ErrNoAddresses)
}

func TestFileRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allow.conf")
	acl := ACL{Allow: []Rule{{Address: "192.0.2.1", Comment: "vpn"}}}

	require.NoError(t, FileRepository{}.Save(context.Background(), acl, path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "allow 192.0.2.1; # vpn\n")
}
