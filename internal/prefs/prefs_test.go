package prefs

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/masterkusok/mpprefs/internal/provider"
	"github.com/masterkusok/mpprefs/internal/store"
	"github.com/masterkusok/mpprefs/internal/value"
)

// twoProcesses returns two handles on one provider, standing in for two
// OS processes attached to it.
func twoProcesses(t *testing.T) (*Preferences, *Preferences) {
	t.Helper()

	p := provider.New(provider.NewStorageBackend(store.NewInMemoryStorage()), provider.NewHub(nil), nil)

	first, err := New(provider.NewLocal(p, "proc-1"))
	require.NoError(t, err)
	second, err := New(provider.NewLocal(p, "proc-2"))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, first.Close())
		require.NoError(t, second.Close())
	})
	return first, second
}

func TestWriteThenRead(t *testing.T) {
	prefs, _ := twoProcesses(t)

	require.True(t, prefs.Edit().
		PutBool("enabled", true).
		PutInt64("big", 1<<40).
		PutFloat64("ratio", 0.75).
		PutString("name", "alice").
		PutStringSet("tags", value.NewSet("a", "b", "c")).
		Commit())

	assert.True(t, prefs.GetBool("enabled", false))
	assert.Equal(t, int64(1<<40), prefs.GetInt64("big", 0))
	assert.Equal(t, 0.75, prefs.GetFloat64("ratio", 0))
	assert.Equal(t, "alice", prefs.GetString("name", ""))
	assert.True(t, value.NewSet("c", "b", "a").Equal(prefs.GetStringSet("tags", value.NewSet())))
}

func TestTypeMismatchFallsBackToDefault(t *testing.T) {
	prefs, _ := twoProcesses(t)

	require.True(t, prefs.Edit().PutInt("volume", 7).Commit())

	assert.Equal(t, 7, prefs.GetInt("volume", -1))
	assert.Equal(t, "x", prefs.GetString("volume", "x"))
	assert.Equal(t, 1.5, prefs.GetFloat64("volume", 1.5))
	assert.True(t, prefs.GetBool("volume", true))
	assert.Equal(t, 0, prefs.GetStringSet("volume", value.NewSet()).Len())
}

func TestStringSetRoundTrip(t *testing.T) {
	prefs, _ := twoProcesses(t)

	require.True(t, prefs.Edit().PutStringSet("tags", value.NewSet("a", "b", "c")).Commit())

	got := prefs.GetStringSet("tags", value.NewSet())
	assert.True(t, value.NewSet("a", "b", "c").Equal(got))
	assert.Equal(t, "fallback", prefs.GetString("missing", "fallback"))
}

func TestRemove(t *testing.T) {
	prefs, _ := twoProcesses(t)

	keys := map[string]value.Value{
		"b": value.Bool(true),
		"i": value.Int64(1),
		"f": value.Float64(1),
		"s": value.String("s"),
		"t": value.StringSetOf(value.NewSet("x")),
	}
	editor := prefs.Edit()
	for k, v := range keys {
		editor.Put(k, v)
	}
	require.True(t, editor.Commit())

	editor = prefs.Edit()
	for k := range keys {
		editor.Remove(k)
	}
	require.True(t, editor.Commit())

	assert.False(t, prefs.GetBool("b", false))
	assert.Equal(t, int64(-1), prefs.GetInt64("i", -1))
	assert.Equal(t, -1.0, prefs.GetFloat64("f", -1))
	assert.Equal(t, "def", prefs.GetString("s", "def"))
	assert.Equal(t, 0, prefs.GetStringSet("t", value.NewSet()).Len())
	for k := range keys {
		assert.False(t, prefs.Contains(k), k)
	}
}

func TestClearRunsFirst(t *testing.T) {
	prefs, _ := twoProcesses(t)

	require.True(t, prefs.Edit().PutString("a", "1").PutString("b", "2").Commit())
	require.Len(t, prefs.GetAll(), 2)

	require.True(t, prefs.Edit().PutString("c", "3").Clear().Commit())
	all := prefs.GetAll()
	assert.Len(t, all, 1)
	assert.True(t, value.String("3").Equal(all["c"]))

	require.True(t, prefs.Edit().Clear().Commit())
	assert.Empty(t, prefs.GetAll())
}

func TestGetAllHeuristicDecode(t *testing.T) {
	prefs, _ := twoProcesses(t)

	prefs.Edit().
		PutString("literal", "true").
		PutString("json", `["x","y"]`).
		PutString("plain", "hello").
		PutInt("n", 3).
		PutFloat64("f", 2.5).
		PutBool("flag", false).
		Apply()

	all := prefs.GetAll()
	assert.True(t, value.Bool(true).Equal(all["literal"]), "a literal \"true\" string reads back as a boolean")
	assert.True(t, value.StringSetOf(value.NewSet("x", "y")).Equal(all["json"]))
	assert.True(t, value.String("hello").Equal(all["plain"]))
	assert.True(t, value.Int64(3).Equal(all["n"]))
	assert.True(t, value.Float64(2.5).Equal(all["f"]))
	assert.True(t, value.Bool(false).Equal(all["flag"]))

	assert.True(t, prefs.GetBool("literal", false))
	assert.Equal(t, "false", prefs.GetString("flag", ""))
}

func TestCommitPanicsOnInvalidValue(t *testing.T) {
	prefs, _ := twoProcesses(t)
	assert.Panics(t, func() { prefs.Edit().Put("k", value.Value{}).Commit() })
}

func TestEditorIsEmptyAfterCommit(t *testing.T) {
	prefs, _ := twoProcesses(t)

	editor := prefs.Edit().PutString("a", "1")
	require.True(t, editor.Commit())
	require.True(t, prefs.Edit().Remove("a").Commit())

	require.True(t, editor.Commit())
	assert.False(t, prefs.Contains("a"))
}

func TestCrossProcessNotification(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := provider.New(provider.NewStorageBackend(store.NewInMemoryStorage()), provider.NewHub(nil), nil)
	watcher, err := New(provider.NewLocal(p, "watcher"))
	require.NoError(t, err)
	writer, err := New(provider.NewLocal(p, "writer"))
	require.NoError(t, err)

	watched := make(chan string, 4)
	self := make(chan string, 4)
	regW := watcher.Register(ListenerFunc(func(_ *Preferences, key string) { watched <- key }))
	regS := writer.Register(ListenerFunc(func(_ *Preferences, key string) { self <- key }))

	require.True(t, writer.Edit().PutInt("k", 1).Commit())

	select {
	case key := <-watched:
		assert.Equal(t, "k", key)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher was not notified")
	}

	require.NoError(t, regW.Close())
	require.NoError(t, regS.Close())
	require.NoError(t, watcher.Close())
	require.NoError(t, writer.Close())

	assert.Empty(t, watched, "exactly one notification per committed key")
	assert.Empty(t, self, "the writer does not observe its own commit")
}

func TestLargeCommitNotifiesEveryKey(t *testing.T) {
	writer, watcher := twoProcesses(t)
	const keys = 200

	var mu sync.Mutex
	seen := make(map[string]int)
	reg := watcher.Register(ListenerFunc(func(p *Preferences, key string) {
		_ = p.GetInt(key, -1)
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen[key]++
		mu.Unlock()
	}))
	defer reg.Close()

	editor := writer.Edit()
	for i := 0; i < keys; i++ {
		editor.PutInt("k"+strconv.Itoa(i), i)
	}
	require.True(t, editor.Commit())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == keys
	}, 10*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for key, n := range seen {
		assert.Equal(t, 1, n, key)
	}
}

func TestUnregisteredListenerIsSilent(t *testing.T) {
	watcher, writer := twoProcesses(t)

	calls := make(chan string, 4)
	reg := watcher.Register(ListenerFunc(func(_ *Preferences, key string) { calls <- key }))
	require.NoError(t, reg.Close())

	require.True(t, writer.Edit().PutInt("k", 1).Commit())
	// Ordering probe: a second listener registered afterwards must see the
	// change, which means the first one had its chance too.
	seen := make(chan string, 1)
	probe := watcher.Register(ListenerFunc(func(_ *Preferences, key string) {
		select {
		case seen <- key:
		default:
		}
	}))
	defer probe.Close()
	require.True(t, writer.Edit().PutInt("k", 2).Commit())

	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("probe was not notified")
	}
	assert.Empty(t, calls)
}

type failingResolver struct{}

var errDown = errors.New("provider down")

func (failingResolver) Origin() string { return "failing" }
func (failingResolver) Query(context.Context, *url.URL) ([]value.Row, bool, error) {
	return nil, false, errDown
}
func (failingResolver) Insert(context.Context, *url.URL, value.ContentValues) (*url.URL, error) {
	return nil, errDown
}
func (failingResolver) Update(context.Context, *url.URL, value.ContentValues) (int, error) {
	return 0, errDown
}
func (failingResolver) Delete(context.Context, *url.URL) (int, error) { return 0, errDown }
func (failingResolver) RegisterObserver(*url.URL, bool, provider.Observer) (io.Closer, error) {
	return io.NopCloser(nil), nil
}

func TestTransportFailuresReturnDefaults(t *testing.T) {
	prefs, err := New(failingResolver{})
	require.NoError(t, err)
	defer prefs.Close()

	assert.Equal(t, 9, prefs.GetInt("k", 9))
	assert.Equal(t, "d", prefs.GetString("k", "d"))
	assert.Empty(t, prefs.GetAll())
	assert.False(t, prefs.Contains("k"))
	assert.False(t, prefs.Edit().PutInt("k", 1).Commit())
	assert.False(t, prefs.Edit().Clear().Commit())
}
