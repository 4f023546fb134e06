// Package httptp executes documents over GraphQL-over-HTTP.
package httptp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/hanpama/graphstore/internal/eventbus"
	"github.com/hanpama/graphstore/internal/events"
	"github.com/hanpama/graphstore/internal/plugins"
)

// ErrNoEndpoint is returned when the transport has no URL to post to.
var ErrNoEndpoint = errors.New("httptp: endpoint not configured")

// maxBody bounds the response size read from the server.
const maxBody = 32 << 20

// Options configures the transport.
type Options struct {
	Endpoint string
	// Client is used when the pipeline context carries no *http.Client.
	Client *http.Client
	// PersistedOnly sends only the document hash when one is known.
	PersistedOnly bool
	Headers       map[string]string
	Bus           *eventbus.Bus
}

type Option func(*Options)

func WithEndpoint(url string) Option         { return func(o *Options) { o.Endpoint = url } }
func WithClient(c *http.Client) Option       { return func(o *Options) { o.Client = c } }
func WithPersistedOnly(v bool) Option        { return func(o *Options) { o.PersistedOnly = v } }
func WithHeaders(h map[string]string) Option { return func(o *Options) { o.Headers = h } }
func WithBus(b *eventbus.Bus) Option         { return func(o *Options) { o.Bus = b } }

// Transport posts documents to a GraphQL endpoint.
type Transport struct {
	opts Options
}

func New(opts ...Option) *Transport {
	o := Options{Client: http.DefaultClient}
	for _, f := range opts {
		f(&o)
	}
	return &Transport{opts: o}
}

var _ plugins.RequestHandler = (*Transport)(nil)

type requestBody struct {
	Query         string         `json:"query,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    *extensions    `json:"extensions,omitempty"`
}

type extensions struct {
	PersistedQuery persistedQuery `json:"persistedQuery"`
}

type persistedQuery struct {
	Version    int    `json:"version"`
	Sha256Hash string `json:"sha256Hash"`
}

type responseBody struct {
	Data   map[string]any `json:"data"`
	Errors gqlerror.List  `json:"errors"`
}

// Request posts args as a JSON body and decodes the GraphQL response. Non-2xx
// responses carrying a GraphQL body are decoded like any other; the rest are
// returned as errors.
func (t *Transport) Request(ctx context.Context, args plugins.RequestArgs) (plugins.Payload, error) {
	if t.opts.Endpoint == "" {
		return plugins.Payload{}, ErrNoEndpoint
	}
	body := requestBody{
		Query:         args.Text,
		OperationName: args.Name,
		Variables:     args.Variables,
	}
	if args.Hash != "" {
		body.Extensions = &extensions{PersistedQuery: persistedQuery{Version: 1, Sha256Hash: args.Hash}}
		if t.opts.PersistedOnly {
			body.Query = ""
		}
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return plugins.Payload{}, fmt.Errorf("httptp: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return plugins.Payload{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/graphql-response+json, application/json")
	for k, v := range t.opts.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range plugins.SessionHeaders(args.Session) {
		req.Header.Set(k, v)
	}

	client := args.Fetch
	if client == nil {
		client = t.opts.Client
	}

	start := time.Now()
	eventbus.Publish(t.opts.Bus, ctx, events.NetworkStart{Transport: "http", Target: t.opts.Endpoint, Document: args.Name})
	payload, status, err := t.do(client, req)
	eventbus.Publish(t.opts.Bus, ctx, events.NetworkFinish{
		Transport: "http",
		Target:    t.opts.Endpoint,
		Document:  args.Name,
		Status:    status,
		Err:       err,
		Duration:  time.Since(start),
	})
	return payload, err
}

func (t *Transport) do(client *http.Client, req *http.Request) (plugins.Payload, string, error) {
	res, err := client.Do(req)
	if err != nil {
		return plugins.Payload{}, "", err
	}
	defer res.Body.Close()
	status := strconv.Itoa(res.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return plugins.Payload{}, status, err
	}
	var out responseBody
	if err := json.Unmarshal(raw, &out); err != nil || (out.Data == nil && out.Errors == nil) {
		if res.StatusCode/100 != 2 {
			return plugins.Payload{}, status, fmt.Errorf("httptp: unexpected status %s", res.Status)
		}
		if err == nil {
			err = errors.New("response has neither data nor errors")
		}
		return plugins.Payload{}, status, fmt.Errorf("httptp: decode response: %w", err)
	}
	return plugins.Payload{Data: out.Data, Errors: out.Errors}, status, nil
}
