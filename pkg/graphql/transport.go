package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nasmon/unraid/pkg/metrics"
)

const defaultRequestTimeout = 30 * time.Second

// Transport issues GraphQL queries and mutations over HTTP. One POST per
// call, carrying the API key header and an Origin header matching the
// configured host.
type Transport struct {
	origin     string
	endpoint   string
	wsEndpoint string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *Transport) { t.httpClient = c }
}

// WithLogger sets the transport logger.
func WithLogger(l zerolog.Logger) TransportOption {
	return func(t *Transport) { t.log = l }
}

// NewTransport creates a Transport for the given host. Hosts without a
// scheme default to http. The GraphQL endpoint is {host}/graphql and the
// subscription endpoint is the same URL with a ws/wss scheme.
func NewTransport(host, apiKey string, opts ...TransportOption) (*Transport, error) {
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host %q: %w", host, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid host %q: missing authority", host)
	}

	origin := &url.URL{Scheme: u.Scheme, Host: u.Host}
	endpoint := origin.JoinPath("graphql")
	wsEndpoint := *endpoint
	if u.Scheme == "https" {
		wsEndpoint.Scheme = "wss"
	} else {
		wsEndpoint.Scheme = "ws"
	}

	t := &Transport{
		origin:     origin.String(),
		endpoint:   endpoint.String(),
		wsEndpoint: wsEndpoint.String(),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Origin returns the normalized origin URL of the server.
func (t *Transport) Origin() string { return t.origin }

// wireResponse is the raw shape of a GraphQL HTTP response body.
type wireResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []*Error        `json:"errors"`
}

// Call executes one query or mutation and returns the raw data payload.
// op names the operation for logging and metrics only. A response with a
// non-empty errors list never yields data; it is classified and returned
// as an error instead.
func (t *Transport) Call(ctx context.Context, op, query string, variables map[string]any) (json.RawMessage, error) {
	data, err := t.call(ctx, op, query, variables)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.APIRequestsTotal.WithLabelValues(op, status).Inc()

	return data, err
}

func (t *Transport) call(ctx context.Context, op, query string, variables map[string]any) (json.RawMessage, error) {
	start := time.Now()
	defer func() {
		metrics.APIRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	if variables == nil {
		variables = map[string]any{}
	}
	body, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", t.apiKey)
	req.Header.Set("Origin", t.origin)
	req.Header.Set("content-type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		terr := classifyTransportError(err, t.endpoint)
		t.log.Debug().Str("operation", op).Str("kind", string(terr.Kind)).Err(err).Msg("request failed")
		return nil, terr
	}
	defer resp.Body.Close()

	var result wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &InvalidResponseError{StatusCode: resp.StatusCode, Err: err}
	}

	if len(result.Errors) > 0 {
		gerr := classifyGraphQLErrors(result.Errors, result.Data)
		t.log.Debug().Str("operation", op).Err(gerr).Msg("server returned errors")
		return nil, gerr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &InvalidResponseError{StatusCode: resp.StatusCode}
	}
	if result.Data == nil {
		return nil, &InvalidResponseError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("response has neither data nor errors"),
		}
	}

	return result.Data, nil
}
