package prefs

import (
	"context"
	"io"
	"net/url"

	"github.com/masterkusok/mpprefs/internal/provider"
	"github.com/masterkusok/mpprefs/internal/value"
)

// Resolver is the cross-process channel to a provider. provider.Local and
// api.Client implement it.
type Resolver interface {
	Origin() string
	Query(ctx context.Context, uri *url.URL) ([]value.Row, bool, error)
	Insert(ctx context.Context, uri *url.URL, cv value.ContentValues) (*url.URL, error)
	Update(ctx context.Context, uri *url.URL, cv value.ContentValues) (int, error)
	Delete(ctx context.Context, uri *url.URL) (int, error)
	RegisterObserver(uri *url.URL, descendants bool, observer provider.Observer) (io.Closer, error)
}
