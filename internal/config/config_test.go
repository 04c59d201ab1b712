package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

const sampleConfig = `
interval: 10s
statePath: /var/lib/whitelist.db
dns:
  nameservers: ["9.9.9.9:53"]
entries:
  - name: api
    fqdn: api.example.com
  - name: office
    fqdn: office.example.org
whitelists:
  - type: traefik
    entries: [api, office]
    middleware: office-only
    path: /etc/traefik/dynamic/office.yml
  - type: nginx
    entries: []
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Interval)
	assert.Equal(t, "/var/lib/whitelist.db", cfg.StatePath)
	assert.Equal(t, []string{"9.9.9.9:53"}, cfg.DNS.Nameservers)
	assert.Equal(t, defaultDNSTimeout, cfg.DNS.Timeout)
	assert.Equal(t, []string{"api", "office"}, cfg.EntryNames())
	require.Len(t, cfg.Whitelists, 2)
	assert.Equal(t, "office-only", cfg.Whitelists[0].Middleware)
	assert.Empty(t, cfg.Whitelists[1].Entries)
	assert.True(t, cfg.ShouldRunOnStart())
	assert.True(t, cfg.MetricsEnabled())
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, defaultInterval, cfg.Interval)
	assert.Equal(t, defaultStatePath, cfg.StatePath)
	assert.Equal(t, defaultLogLevel, cfg.Log.Level)
	assert.Equal(t, defaultLogEnv, cfg.Log.Env)
	assert.Equal(t, defaultMetricsAddress, cfg.Metrics.Address)
	assert.Equal(t, defaultHTTPTimeout, cfg.Caddy.Timeout)
	assert.Equal(t, defaultHTTPTimeout, cfg.Cloudflare.Timeout)
	assert.False(t, cfg.DryRun)
}

func TestLoadRemoteTimeoutsAndDryRun(t *testing.T) {
	body := sampleConfig + `
dryRun: true
caddy:
  adminUrl: http://localhost:2019
  timeout: 3s
cloudflare:
  timeout: 20s
`
	cfg, err := Load(writeConfig(t, t.TempDir(), body))
	require.NoError(t, err)

	assert.True(t, cfg.DryRun)
	assert.Equal(t, 3*time.Second, cfg.Caddy.Timeout)
	assert.Equal(t, 20*time.Second, cfg.Cloudflare.Timeout)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "entries: [:")
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(envPrefix+"INTERVAL", "2m")
	t.Setenv(envPrefix+"RUN_ON_START", "false")
	t.Setenv(envPrefix+"STATE_PATH", "/tmp/state")
	t.Setenv(envPrefix+"CLOUDFLARE_TOKEN", "secret")
	t.Setenv(envPrefix+"NAMESERVERS", "1.1.1.1:53,8.8.8.8:53")
	t.Setenv(envPrefix+"LOG_ENV", "dev")
	t.Setenv(envPrefix+"DRY_RUN", "true")

	cfg, err := Load(writeConfig(t, t.TempDir(), sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Interval)
	assert.False(t, cfg.ShouldRunOnStart())
	assert.Equal(t, "/tmp/state", cfg.StatePath)
	assert.Equal(t, "secret", cfg.Cloudflare.Token)
	assert.Equal(t, []string{"1.1.1.1:53", "8.8.8.8:53"}, cfg.DNS.Nameservers)
	assert.Equal(t, "dev", cfg.Log.Env)
	assert.True(t, cfg.DryRun)
}

func TestEnvOverrideBadIntervalIgnored(t *testing.T) {
	t.Setenv(envPrefix+"INTERVAL", "soon")

	cfg, err := Load(writeConfig(t, t.TempDir(), sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Interval)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Entries: []Entry{
			{Name: "", FQDN: "a.example.com"},
			{Name: "b", FQDN: ""},
			{Name: "c", FQDN: "c.example.com"},
			{Name: "c", FQDN: "c2.example.com"},
		},
		Whitelists: []Whitelist{
			{Entries: []string{"c"}},
		},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
	assert.ErrorContains(t, err, `duplicate name "c"`)
	assert.ErrorContains(t, err, "whitelists[0]: type is required")
}

func TestStoreReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleConfig)

	store, err := NewStore(path)
	require.NoError(t, err)
	require.Len(t, store.Snapshot().Entries, 2)

	writeConfig(t, dir, "entries:\n  - name: api\n")
	require.Error(t, store.Reload())
	assert.Len(t, store.Snapshot().Entries, 2)

	writeConfig(t, dir, "entries:\n  - name: api\n    fqdn: api.example.com\n")
	require.NoError(t, store.Reload())
	assert.Len(t, store.Snapshot().Entries, 1)
}

func TestStoreServeReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleConfig)

	store, err := NewStore(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Serve(ctx) }()

	// The watcher registers asynchronously, so keep writing until it notices.
	require.Eventually(t, func() bool {
		writeConfig(t, dir, "entries:\n  - name: solo\n    fqdn: solo.example.com\n")
		return len(store.Snapshot().Entries) == 1
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestStaticStore(t *testing.T) {
	cfg := &Config{Interval: time.Second}
	store := NewStaticStore(cfg)
	assert.Same(t, cfg, store.Snapshot())
}
