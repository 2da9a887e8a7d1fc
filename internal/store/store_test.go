package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masterkusok/mpprefs/internal/value"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Storage{
		"memory": NewInMemoryStorage(),
		"sqlite": sqlite,
	}
}

func TestStorage(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			entries := map[string]value.Value{
				"enabled": value.Bool(true),
				"volume":  value.Int64(7),
				"ratio":   value.Float64(0.5),
				"name":    value.String("alice"),
				"tags":    value.StringSetOf(value.NewSet("a", "b", "c")),
			}
			for k, v := range entries {
				require.NoError(t, s.Set(k, v))
			}

			for k, want := range entries {
				got, err := s.Get(k)
				require.NoError(t, err)
				assert.True(t, want.Equal(got), "%s: want %v got %v", k, want, got)
			}

			require.NoError(t, s.Set("volume", value.Int64(8)))
			got, err := s.Get("volume")
			require.NoError(t, err)
			assert.True(t, value.Int64(8).Equal(got))

			existed, err := s.Delete("volume")
			require.NoError(t, err)
			assert.True(t, existed)
			_, err = s.Get("volume")
			assert.ErrorIs(t, err, ErrKeyNotFound)

			existed, err = s.Delete("volume")
			require.NoError(t, err)
			assert.False(t, existed)

			snap, err := s.GetSnapshot()
			require.NoError(t, err)
			assert.Len(t, snap, 4)

			removed, err := s.Clear()
			require.NoError(t, err)
			assert.Equal(t, 4, removed)
			snap, err = s.GetSnapshot()
			require.NoError(t, err)
			assert.Empty(t, snap)

			require.NoError(t, s.ApplySnapshot(entries))
			snap, err = s.GetSnapshot()
			require.NoError(t, err)
			assert.Len(t, snap, len(entries))
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	for _, name := range []string{"prefs.db", "odd?name#1.db", "50%.db"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			s, err := OpenSQLite(path)
			require.NoError(t, err)
			require.NoError(t, s.Set("name", value.String("bob")))
			require.NoError(t, s.Close())

			_, err = os.Stat(path)
			require.NoError(t, err, "settings file is created at the exact path")

			s, err = OpenSQLite(path)
			require.NoError(t, err)
			defer s.Close()

			got, err := s.Get("name")
			require.NoError(t, err)
			assert.True(t, value.String("bob").Equal(got))
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file:dir/a%3Fb%23c%25.db?"+sqlitePragmas, sqliteDSN("dir/a?b#c%.db"))
}

func TestOpen(t *testing.T) {
	s, err := Open(DriverMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &InMemoryStorage{}, s)

	_, err = Open(DriverSQLite, "")
	assert.Error(t, err)

	_, err = Open("etcd", "")
	assert.Error(t, err)
}
