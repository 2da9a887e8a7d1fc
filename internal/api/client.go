package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/masterkusok/mpprefs/internal/provider"
	"github.com/masterkusok/mpprefs/internal/value"
)

var ErrNotLeader = errors.New("provider node is not the leader")

// APIError is a non-success answer from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
}

// Client is a resolver that reaches a provider over HTTP, one client per
// attached process.
type Client struct {
	endpoint string
	origin   string
	http     *http.Client
	dialer   *websocket.Dialer
	logger   *zap.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(cl *Client) { cl.logger = logger }
}

// NewClient returns a resolver for the provider at endpoint, for example
// "http://localhost:8000". An empty origin gets a random one.
func NewClient(endpoint, origin string, opts ...ClientOption) *Client {
	if origin == "" {
		origin = uuid.NewString()
	}
	c := &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		origin:   origin,
		http:     http.DefaultClient,
		dialer:   websocket.DefaultDialer,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("client")
	return c
}

func (c *Client) Origin() string { return c.origin }

// path maps a content URI onto its HTTP route. Unknown URIs panic.
func (c *Client) path(uri *url.URL) (string, provider.Match) {
	m, key := provider.MatchURI(uri)
	switch m {
	case provider.MatchCollection:
		return c.endpoint + "/api/v1/preferences", m
	case provider.MatchItem:
		return c.endpoint + "/api/v1/preferences/" + url.PathEscape(key), m
	}
	panic(fmt.Sprintf("unknown URL %v", uri))
}

func (c *Client) do(ctx context.Context, method, target string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(OriginHeader, c.origin)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if resp.StatusCode == http.StatusMisdirectedRequest {
			return fmt.Errorf("%w: %s", ErrNotLeader, apiErr.Message)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) Query(ctx context.Context, uri *url.URL) ([]value.Row, bool, error) {
	target, _ := c.path(uri)

	var out rowsResponse
	err := c.do(ctx, http.MethodGet, target, nil, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return out.Rows, true, nil
}

func (c *Client) Insert(ctx context.Context, uri *url.URL, cv value.ContentValues) (*url.URL, error) {
	target, m := c.path(uri)
	if m != provider.MatchCollection {
		panic(fmt.Sprintf("cannot insert into URL %v", uri))
	}

	var out insertResponse
	if err := c.do(ctx, http.MethodPost, target, cv, &out); err != nil {
		return nil, err
	}
	inserted, err := url.Parse(out.URI)
	if err != nil {
		return nil, fmt.Errorf("parse inserted uri: %w", err)
	}
	return inserted, nil
}

func (c *Client) Update(ctx context.Context, uri *url.URL, cv value.ContentValues) (int, error) {
	target, m := c.path(uri)
	if m != provider.MatchItem {
		panic(fmt.Sprintf("cannot update URL %v", uri))
	}

	var out countResponse
	if err := c.do(ctx, http.MethodPut, target, cv, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) Delete(ctx context.Context, uri *url.URL) (int, error) {
	target, _ := c.path(uri)

	var out countResponse
	if err := c.do(ctx, http.MethodDelete, target, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Type asks the provider for the content type of uri.
func (c *Client) Type(ctx context.Context, uri *url.URL) (string, error) {
	target := c.endpoint + "/api/v1/type?uri=" + url.QueryEscape(uri.String())

	var out typeResponse
	if err := c.do(ctx, http.MethodGet, target, nil, &out); err != nil {
		return "", err
	}
	return out.Type, nil
}

const subscribeTimeout = 10 * time.Second

// RegisterObserver opens a change stream and calls observer, from a
// single goroutine, for every change under uri made by another origin.
// It returns once the provider has confirmed the subscription.
func (c *Client) RegisterObserver(uri *url.URL, descendants bool, observer provider.Observer) (io.Closer, error) {
	target, err := url.Parse(c.endpoint + "/api/v1/observe")
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	switch target.Scheme {
	case "https":
		target.Scheme = "wss"
	default:
		target.Scheme = "ws"
	}

	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()

	header := http.Header{}
	header.Set(OriginHeader, c.origin)
	ws, resp, err := c.dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial change stream: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	sub := &subscription{
		ws:    ws,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	go sub.run(c.logger, uri, descendants, observer)

	select {
	case <-sub.ready:
		return sub, nil
	case <-sub.done:
		return nil, fmt.Errorf("change stream closed before it was confirmed")
	case <-ctx.Done():
		_ = sub.Close()
		return nil, fmt.Errorf("wait for change stream: %w", ctx.Err())
	}
}

type subscription struct {
	ws    *websocket.Conn
	ready chan struct{}
	done  chan struct{}
	once  sync.Once
}

func (s *subscription) run(logger *zap.Logger, base *url.URL, descendants bool, observer provider.Observer) {
	defer close(s.done)

	confirmed := false
	for {
		var msg changeMessage
		if err := s.ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("change stream ended", zap.Error(err))
			}
			return
		}

		if msg.URI == "" {
			if !confirmed {
				confirmed = true
				close(s.ready)
			}
			continue
		}

		uri, err := url.Parse(msg.URI)
		if err != nil {
			logger.Warn("bad change uri", zap.String("uri", msg.URI), zap.Error(err))
			continue
		}
		if provider.Matches(base, descendants, uri) {
			observer(uri)
		}
	}
}

// Close ends the stream and waits for the dispatch goroutine to exit.
func (s *subscription) Close() error {
	s.once.Do(func() {
		_ = s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = s.ws.Close()
	})
	<-s.done
	return nil
}
