// Package provider owns the preference backend and exposes it through a
// small URI-addressed protocol: query, insert, update and delete against
// the preference collection or a single preference, with a change
// notification for every applied write.
package provider

import (
	"errors"
	"fmt"
	"net/url"
	"sort"

	"go.uber.org/zap"

	"github.com/masterkusok/mpprefs/internal/command"
	"github.com/masterkusok/mpprefs/internal/store"
	"github.com/masterkusok/mpprefs/internal/value"
)

var ErrMissingKey = errors.New("preference key is required")

const (
	collectionType = "vnd.mpprefs.dir/" + Entity
	itemType       = "vnd.mpprefs.item/" + Entity
)

type Provider struct {
	backend Backend
	hub     *Hub
	logger  *zap.Logger
}

func New(backend Backend, hub *Hub, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provider{
		backend: backend,
		hub:     hub,
		logger:  logger.Named("provider"),
	}
	backend.OnApplied(p.notify)
	return p
}

func (p *Provider) Hub() *Hub { return p.hub }

func (p *Provider) notify(cmd command.Command, origin string) {
	uri := CollectionURI()
	if cmd.Action != command.ClearAction {
		uri = ItemURI(cmd.Key)
	}
	p.logger.Debug("change", zap.Stringer("uri", uri), zap.String("origin", origin))
	p.hub.NotifyChange(uri, origin)
}

// Type returns the content type of uri. Unknown URIs panic.
func (p *Provider) Type(uri *url.URL) string {
	m, _ := mustMatch(uri, "type")
	if m == MatchCollection {
		return collectionType
	}
	return itemType
}

// Query returns every preference for the collection URI, or the single
// row for an item URI. ok is false when the item does not exist.
func (p *Provider) Query(uri *url.URL) (rows []value.Row, ok bool, err error) {
	m, key := mustMatch(uri, "query")

	if m == MatchItem {
		val, err := p.backend.Get(key)
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("query %q: %w", key, err)
		}
		return []value.Row{{Key: key, Value: value.RowField(val)}}, true, nil
	}

	data, err := p.backend.GetSnapshot()
	if err != nil {
		return nil, false, fmt.Errorf("query all: %w", err)
	}
	rows = make([]value.Row, 0, len(data))
	for k, v := range data {
		rows = append(rows, value.Row{Key: k, Value: value.RowField(v)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows, true, nil
}

// Insert writes cv into the collection and returns the item URI. A null
// value removes the key.
func (p *Provider) Insert(uri *url.URL, cv value.ContentValues, origin string) (*url.URL, error) {
	if m, _ := mustMatch(uri, "insert"); m != MatchCollection {
		panic(fmt.Sprintf("cannot insert into URL %v", uri))
	}
	if cv.Key == "" {
		return nil, ErrMissingKey
	}

	if _, err := p.write(cv.Key, cv.Value, origin); err != nil {
		return nil, err
	}
	return ItemURI(cv.Key), nil
}

// Update writes the value of cv to the item addressed by uri. It returns
// 1 when a value was stored or an existing key removed, 0 otherwise.
func (p *Provider) Update(uri *url.URL, cv value.ContentValues, origin string) (int, error) {
	m, key := mustMatch(uri, "update")
	if m != MatchItem {
		panic(fmt.Sprintf("cannot update URL %v", uri))
	}
	return p.write(key, cv.Value, origin)
}

func (p *Provider) write(key string, f value.Field, origin string) (int, error) {
	val, ok := value.Stored(f)
	if ok {
		n, err := p.backend.Apply(command.NewPutCommand(key, val), origin)
		if err != nil {
			return 0, fmt.Errorf("put %q: %w", key, err)
		}
		return n, nil
	}
	return p.remove(key, origin)
}

// Delete clears the collection or removes one item. It returns the number
// of preferences removed.
func (p *Provider) Delete(uri *url.URL, origin string) (int, error) {
	m, key := mustMatch(uri, "delete")

	if m == MatchItem {
		return p.remove(key, origin)
	}

	n, err := p.backend.Apply(command.NewClearCommand(), origin)
	if err != nil {
		return 0, fmt.Errorf("clear: %w", err)
	}
	return n, nil
}

func (p *Provider) remove(key, origin string) (int, error) {
	n, err := p.backend.Apply(command.NewDeleteCommand(key), origin)
	if err != nil {
		return 0, fmt.Errorf("delete %q: %w", key, err)
	}
	return n, nil
}
