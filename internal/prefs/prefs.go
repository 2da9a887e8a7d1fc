// Package prefs is the client side of the multi-process preference store.
// A Preferences handle reads typed values through a Resolver, stages
// writes in an Editor and delivers change notifications from every other
// process attached to the same provider.
package prefs

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/masterkusok/mpprefs/internal/provider"
	"github.com/masterkusok/mpprefs/internal/value"
)

const defaultTimeout = 5 * time.Second

// Listener is told the key of every preference changed by another
// process. A cleared store is reported with the empty key.
type Listener interface {
	OnPreferenceChanged(p *Preferences, key string)
}

type ListenerFunc func(p *Preferences, key string)

func (f ListenerFunc) OnPreferenceChanged(p *Preferences, key string) { f(p, key) }

type Option func(*Preferences)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Preferences) { p.logger = logger }
}

// WithTimeout bounds every round trip to the provider.
func WithTimeout(d time.Duration) Option {
	return func(p *Preferences) { p.timeout = d }
}

type Preferences struct {
	resolver Resolver
	logger   *zap.Logger
	timeout  time.Duration
	observer io.Closer

	mu        sync.RWMutex
	listeners []*Registration
}

// New returns a handle on the provider behind resolver and subscribes to
// its change notifications. Close releases the subscription.
func New(resolver Resolver, opts ...Option) (*Preferences, error) {
	p := &Preferences{
		resolver: resolver,
		logger:   zap.NewNop(),
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("prefs").With(zap.String("origin", resolver.Origin()))

	observer, err := resolver.RegisterObserver(provider.CollectionURI(), true, p.onChange)
	if err != nil {
		return nil, fmt.Errorf("register change observer: %w", err)
	}
	p.observer = observer
	return p, nil
}

// Close stops change delivery. It must not be called from a Listener.
func (p *Preferences) Close() error {
	if err := p.observer.Close(); err != nil {
		return fmt.Errorf("unregister change observer: %w", err)
	}
	return nil
}

func (p *Preferences) onChange(uri *url.URL) {
	key := provider.KeyOf(uri)

	p.mu.RLock()
	listeners := make([]*Registration, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.RUnlock()

	for _, r := range listeners {
		r.listener.OnPreferenceChanged(p, key)
	}
}

// Registration ties a Listener to a Preferences handle until Close.
type Registration struct {
	prefs    *Preferences
	listener Listener
}

func (p *Preferences) Register(l Listener) *Registration {
	r := &Registration{prefs: p, listener: l}

	p.mu.Lock()
	p.listeners = append(p.listeners, r)
	p.mu.Unlock()
	return r
}

func (r *Registration) Close() error {
	p := r.prefs
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, other := range p.listeners {
		if other == r {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			break
		}
	}
	return nil
}

func (p *Preferences) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), p.timeout)
}

// GetAll returns every stored preference, decoded by value.Decode. A
// failed round trip yields an empty map.
func (p *Preferences) GetAll() map[string]value.Value {
	ctx, cancel := p.withTimeout()
	defer cancel()

	out := make(map[string]value.Value)
	rows, ok, err := p.resolver.Query(ctx, provider.CollectionURI())
	if err != nil {
		p.logger.Warn("query all preferences", zap.Error(err))
		return out
	}
	if !ok {
		return out
	}
	for _, row := range rows {
		if v, ok := value.Decode(row.Value); ok {
			out[row.Key] = v
		}
	}
	return out
}

// field fetches the single-key projection of key.
func (p *Preferences) field(key string) (value.Field, bool) {
	ctx, cancel := p.withTimeout()
	defer cancel()

	rows, ok, err := p.resolver.Query(ctx, provider.ItemURI(key))
	if err != nil {
		p.logger.Warn("query preference", zap.String("key", key), zap.Error(err))
		return value.Field{}, false
	}
	if !ok || len(rows) == 0 {
		return value.Field{}, false
	}
	return rows[0].Value, true
}

func (p *Preferences) GetBool(key string, def bool) bool {
	f, ok := p.field(key)
	if !ok || f.Type != value.FieldString {
		return def
	}
	switch f.Str {
	case "true":
		return true
	case "false":
		return false
	}
	return def
}

func (p *Preferences) GetInt(key string, def int) int {
	f, ok := p.field(key)
	if !ok || f.Type != value.FieldInteger {
		return def
	}
	return int(f.Int)
}

func (p *Preferences) GetInt64(key string, def int64) int64 {
	f, ok := p.field(key)
	if !ok || f.Type != value.FieldInteger {
		return def
	}
	return f.Int
}

func (p *Preferences) GetFloat64(key string, def float64) float64 {
	f, ok := p.field(key)
	if !ok || f.Type != value.FieldFloat {
		return def
	}
	return f.Float
}

// GetString returns the raw string cell, so booleans read as "true" or
// "false" and sets as their JSON encoding.
func (p *Preferences) GetString(key string, def string) string {
	f, ok := p.field(key)
	if !ok || f.Type != value.FieldString {
		return def
	}
	return f.Str
}

func (p *Preferences) GetStringSet(key string, def value.Set) value.Set {
	f, ok := p.field(key)
	if !ok || f.Type != value.FieldString {
		return def
	}
	set, err := value.UnmarshalSet(f.Str)
	if err != nil {
		return def
	}
	return set
}

// Contains uses the single-key query rather than fetching every entry.
func (p *Preferences) Contains(key string) bool {
	_, ok := p.field(key)
	return ok
}

func (p *Preferences) Edit() *Editor {
	return &Editor{prefs: p}
}
