package provider

import (
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/masterkusok/mpprefs/internal/store"
	"github.com/masterkusok/mpprefs/internal/value"
)

func newProvider(t *testing.T) *Provider {
	t.Helper()
	return New(NewStorageBackend(store.NewInMemoryStorage()), NewHub(nil), nil)
}

func TestMatchURI(t *testing.T) {
	tests := []struct {
		raw   string
		match Match
		key   string
	}{
		{raw: "content://com.mpprefs.providers/preferences", match: MatchCollection},
		{raw: "content://com.mpprefs.providers/preferences/volume", match: MatchItem, key: "volume"},
		{raw: "content://com.mpprefs.providers/preferences/a%2Fb", match: MatchItem, key: "a/b"},
		{raw: "content://com.mpprefs.providers/preferences/a/b", match: NoMatch},
		{raw: "content://com.mpprefs.providers/settings", match: NoMatch},
		{raw: "content://other/preferences", match: NoMatch},
		{raw: "http://com.mpprefs.providers/preferences", match: NoMatch},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		require.NoError(t, err)
		m, key := MatchURI(u)
		assert.Equal(t, tt.match, m, tt.raw)
		assert.Equal(t, tt.key, key, tt.raw)
	}
}

func TestItemURIEscapesKey(t *testing.T) {
	u := ItemURI("dir/name with space")
	assert.Equal(t, "content://com.mpprefs.providers/preferences/dir%2Fname%20with%20space", u.String())
	assert.Equal(t, "dir/name with space", KeyOf(u))
	assert.Equal(t, "", KeyOf(CollectionURI()))
}

func TestType(t *testing.T) {
	p := newProvider(t)
	assert.Equal(t, "vnd.mpprefs.dir/preferences", p.Type(CollectionURI()))
	assert.Equal(t, "vnd.mpprefs.item/preferences", p.Type(ItemURI("k")))
	assert.Panics(t, func() { p.Type(&url.URL{Scheme: "content", Host: "nope"}) })
}

func TestInsertQueryDelete(t *testing.T) {
	p := newProvider(t)

	uri, err := p.Insert(CollectionURI(), value.ContentValues{Key: "volume", Value: value.IntegerField(7)}, "a")
	require.NoError(t, err)
	assert.Equal(t, ItemURI("volume").String(), uri.String())

	_, err = p.Insert(CollectionURI(), value.ContentValues{Key: "enabled", Value: value.BoolField(true)}, "a")
	require.NoError(t, err)
	_, err = p.Insert(CollectionURI(), value.ContentValues{Key: "tags", Value: value.StringField(`["a","b"]`)}, "a")
	require.NoError(t, err)

	rows, ok, err := p.Query(CollectionURI())
	require.NoError(t, err)
	require.True(t, ok)
	want := []value.Row{
		{Key: "enabled", Value: value.StringField("true")},
		{Key: "tags", Value: value.StringField(`["a","b"]`)},
		{Key: "volume", Value: value.IntegerField(7)},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	rows, ok, err = p.Query(ItemURI("volume"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []value.Row{{Key: "volume", Value: value.IntegerField(7)}}, rows)

	_, ok, err = p.Query(ItemURI("missing"))
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := p.Delete(ItemURI("volume"), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = p.Delete(ItemURI("volume"), "a")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = p.Delete(CollectionURI(), "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, _, err = p.Query(CollectionURI())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestInsertValidation(t *testing.T) {
	p := newProvider(t)

	_, err := p.Insert(CollectionURI(), value.ContentValues{Value: value.IntegerField(1)}, "a")
	assert.ErrorIs(t, err, ErrMissingKey)

	assert.Panics(t, func() {
		_, _ = p.Insert(ItemURI("k"), value.ContentValues{Key: "k", Value: value.IntegerField(1)}, "a")
	})
	assert.Panics(t, func() {
		_, _ = p.Update(CollectionURI(), value.ContentValues{Value: value.IntegerField(1)}, "a")
	})
}

func TestUpdate(t *testing.T) {
	p := newProvider(t)

	n, err := p.Update(ItemURI("name"), value.ContentValues{Value: value.StringField("alice")}, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = p.Update(ItemURI("name"), value.ContentValues{Value: value.NullField()}, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = p.Update(ItemURI("name"), value.ContentValues{Value: value.NullField()}, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestNotifications(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newProvider(t)
	hub := p.Hub()

	other := make(chan string, 8)
	self := make(chan string, 8)
	regOther := hub.Register(CollectionURI(), true, "b", func(u *url.URL) { other <- u.String() })
	regSelf := hub.Register(CollectionURI(), true, "a", func(u *url.URL) { self <- u.String() })
	regExact := hub.Register(ItemURI("other"), false, "c", func(u *url.URL) { t.Errorf("unexpected %v", u) })

	_, err := p.Update(ItemURI("k"), value.ContentValues{Value: value.IntegerField(1)}, "a")
	require.NoError(t, err)

	select {
	case got := <-other:
		assert.Equal(t, ItemURI("k").String(), got)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification delivered")
	}

	_, err = p.Delete(CollectionURI(), "a")
	require.NoError(t, err)
	select {
	case got := <-other:
		assert.Equal(t, CollectionURI().String(), got)
	case <-time.After(2 * time.Second):
		t.Fatal("no clear notification delivered")
	}

	require.NoError(t, regOther.Close())
	require.NoError(t, regSelf.Close())
	require.NoError(t, regExact.Close())
	assert.Empty(t, self)
	assert.Empty(t, other)
	hub.mu.RLock()
	assert.Empty(t, hub.regs)
	hub.mu.RUnlock()
}

func TestSlowObserverSeesEveryChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newProvider(t)
	const writes = 500

	release := make(chan struct{})
	var mu sync.Mutex
	var seen []string
	reg := p.Hub().Register(CollectionURI(), true, "b", func(u *url.URL) {
		<-release
		mu.Lock()
		seen = append(seen, KeyOf(u))
		mu.Unlock()
	})
	defer reg.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < writes; i++ {
			_, err := p.Update(ItemURI(strconv.Itoa(i)), value.ContentValues{Value: value.IntegerField(int64(i))}, "a")
			assert.NoError(t, err)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writes blocked on a slow observer")
	}
	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == writes
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, key := range seen {
		assert.Equal(t, strconv.Itoa(i), key, "changes arrive in write order")
	}
}

func TestClearCountsUnderConcurrentWrites(t *testing.T) {
	p := newProvider(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted, cleared := 0, 0
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := strconv.Itoa(w) + "-" + strconv.Itoa(i)
				n, err := p.Update(ItemURI(key), value.ContentValues{Value: value.IntegerField(1)}, "a")
				assert.NoError(t, err)
				mu.Lock()
				inserted += n
				mu.Unlock()
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			n, err := p.Delete(CollectionURI(), "a")
			assert.NoError(t, err)
			mu.Lock()
			cleared += n
			mu.Unlock()
		}
	}()
	wg.Wait()

	n, err := p.Delete(CollectionURI(), "a")
	require.NoError(t, err)
	assert.Equal(t, inserted, cleared+n, "every written key is counted by exactly one clear")
}

func TestPanickingObserverIsContained(t *testing.T) {
	p := newProvider(t)

	delivered := make(chan struct{}, 2)
	reg := p.Hub().Register(CollectionURI(), true, "b", func(*url.URL) {
		delivered <- struct{}{}
		panic("boom")
	})
	defer reg.Close()

	for i := 0; i < 2; i++ {
		_, err := p.Update(ItemURI("k"), value.ContentValues{Value: value.IntegerField(1)}, "a")
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-delivered:
		case <-time.After(2 * time.Second):
			t.Fatal("dispatcher died after a panic")
		}
	}
}

func TestLocalResolverUsesItsOrigin(t *testing.T) {
	p := newProvider(t)
	l := NewLocal(p, "")
	assert.NotEmpty(t, l.Origin())
	assert.Equal(t, "fixed", NewLocal(p, "fixed").Origin())
}
