package entry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/evanofslack/dns-whitelist-sync/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryRepo(t *testing.T) Repository {
	t.Helper()
	repo, err := NewBadger(memoryPath, metrics.New(false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestBadgerRepository(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(t)
	now := time.Now().UTC().Truncate(time.Second)

	_, err := repo.GetByName(ctx, "api")
	require.ErrorIs(t, err, ErrNotFound)

	api := Entry{Name: "api", FQDN: "api.example.com"}
	api.Shift("10.0.0.5", now)
	require.NoError(t, repo.AddOrUpdate(ctx, api))

	got, err := repo.GetByName(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, "api.example.com", got.FQDN)
	assert.Equal(t, "10.0.0.5", got.LatestIP)
	assert.Empty(t, got.CurrentIP)
	assert.True(t, now.Equal(got.UpdatedAt))

	got.Shift("10.0.0.9", now.Add(time.Minute))
	require.NoError(t, repo.AddOrUpdate(ctx, got))

	got, err = repo.GetByName(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", got.CurrentIP)
	assert.Equal(t, "10.0.0.9", got.LatestIP)
}

func TestBadgerFindByNames(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo(t)

	for _, e := range []Entry{
		{Name: "a", FQDN: "a.example.com", LatestIP: "10.0.0.1"},
		{Name: "b", FQDN: "b.example.com", LatestIP: "10.0.0.2"},
		{Name: "c", FQDN: "c.example.com", LatestIP: "10.0.0.3"},
	} {
		require.NoError(t, repo.AddOrUpdate(ctx, e))
	}

	tests := []struct {
		name  string
		names []string
		want  []string
	}{
		{name: "request order kept", names: []string{"c", "a"}, want: []string{"c", "a"}},
		{name: "missing names absent", names: []string{"a", "ghost", "b"}, want: []string{"a", "b"}},
		{name: "duplicates collapsed", names: []string{"b", "b"}, want: []string{"b"}},
		{name: "none", names: nil, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := repo.FindByNames(ctx, tt.names)
			require.NoError(t, err)
			got := make([]string, 0, len(entries))
			for _, e := range entries {
				got = append(got, e.Name)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestBadgerAddOrUpdateRequiresName(t *testing.T) {
	repo := newMemoryRepo(t)
	require.Error(t, repo.AddOrUpdate(context.Background(), Entry{FQDN: "x.example.com"}))
}

func TestBadgerPersistsAcrossOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "badger")

	// Write directly, then read through the repository
	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLogger(nil))
	require.NoError(t, err)
	stored := Entry{Name: "direct", FQDN: "direct.example.com", LatestIP: "192.0.2.7"}
	data, err := json.Marshal(stored)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(entryPrefix+"direct"), data)
	}))
	require.NoError(t, db.Close())

	repo, err := NewBadger(dbPath, metrics.New(false))
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.GetByName(context.Background(), "direct")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.7", got.LatestIP)
}

func TestBadgerOpenError(t *testing.T) {
	// A directory below a regular file cannot be created, even by root.
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	_, err := NewBadger(filepath.Join(file, "db"), metrics.New(false))
	require.Error(t, err)
}
