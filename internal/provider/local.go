package provider

import (
	"context"
	"io"
	"net/url"

	"github.com/google/uuid"

	"github.com/masterkusok/mpprefs/internal/value"
)

// Local is an in-process resolver bound to one origin. It gives the
// process that hosts the provider the same view remote processes get.
type Local struct {
	provider *Provider
	origin   string
}

// NewLocal returns a resolver for p. An empty origin gets a random one.
func NewLocal(p *Provider, origin string) *Local {
	if origin == "" {
		origin = uuid.NewString()
	}
	return &Local{provider: p, origin: origin}
}

func (l *Local) Origin() string { return l.origin }

func (l *Local) Query(ctx context.Context, uri *url.URL) ([]value.Row, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return l.provider.Query(uri)
}

func (l *Local) Insert(ctx context.Context, uri *url.URL, cv value.ContentValues) (*url.URL, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.provider.Insert(uri, cv, l.origin)
}

func (l *Local) Update(ctx context.Context, uri *url.URL, cv value.ContentValues) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.provider.Update(uri, cv, l.origin)
}

func (l *Local) Delete(ctx context.Context, uri *url.URL) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.provider.Delete(uri, l.origin)
}

func (l *Local) RegisterObserver(uri *url.URL, descendants bool, observer Observer) (io.Closer, error) {
	return l.provider.hub.Register(uri, descendants, l.origin, observer), nil
}
