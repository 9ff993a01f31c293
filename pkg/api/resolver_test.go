package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasmon/unraid/pkg/graphql"
)

// graphqlHandler serves canned responses keyed on the query's operation
// name. Unknown operations fail the test.
type graphqlHandler struct {
	t *testing.T

	// responses maps an operation name to a full response body.
	responses map[string]string

	// lastVariables records the variables of the most recent request.
	lastVariables map[string]any
}

func (h *graphqlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.t.Errorf("undecodable request: %v", err)
		return
	}
	h.lastVariables = req.Variables

	for op, body := range h.responses {
		if strings.Contains(req.Query, op+" ") || strings.Contains(req.Query, op+"(") ||
			strings.Contains(req.Query, op+"\n") || strings.Contains(req.Query, op+"{") {
			w.Write([]byte(body))
			return
		}
	}
	h.t.Errorf("no canned response for query: %s", req.Query)
}

func versionResponse(version string) string {
	return fmt.Sprintf(`{"data":{"info":{"versions":{"core":{"api":%q}}}}}`, version)
}

// newTestServer starts a GraphQL endpoint that reports the given API
// version plus any extra canned responses.
func newTestServer(t *testing.T, version string, extra map[string]string) (*httptest.Server, *graphqlHandler) {
	t.Helper()
	h := &graphqlHandler{
		t:         t,
		responses: map[string]string{"ApiVersion": versionResponse(version)},
	}
	for op, body := range extra {
		h.responses[op] = body
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, h
}

// TestResolveVariantSelection tests that the reported version picks the
// right client variant
func TestResolveVariantSelection(t *testing.T) {
	tests := []struct {
		name       string
		version    string
		wantUPS    bool
		wantParsed string
	}{
		{
			name:       "baseline version with build metadata",
			version:    "4.20.0+196bd52",
			wantUPS:    false,
			wantParsed: "4.20.0",
		},
		{
			name:       "between variant minimums",
			version:    "4.23.1",
			wantUPS:    false,
			wantParsed: "4.23.1",
		},
		{
			name:       "exact newer minimum",
			version:    "4.26.0",
			wantUPS:    true,
			wantParsed: "4.26.0",
		},
		{
			name:       "above newest minimum",
			version:    "5.0.2",
			wantUPS:    true,
			wantParsed: "5.0.2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.version, nil)

			client, err := Resolve(context.Background(), srv.URL, "key")
			require.NoError(t, err)

			assert.Equal(t, tt.wantParsed, client.Version().String())

			_, ups := client.(UPSQuerier)
			assert.Equal(t, tt.wantUPS, ups, "UPS capability")
			_, telemetry := client.(CPUTelemetrySubscriber)
			assert.Equal(t, tt.wantUPS, telemetry, "CPU telemetry capability")
		})
	}
}

// TestResolveIncompatibleVersion tests rejection of servers older than the
// lowest supported variant
func TestResolveIncompatibleVersion(t *testing.T) {
	srv, _ := newTestServer(t, "4.10.0", nil)

	_, err := Resolve(context.Background(), srv.URL, "key")

	var incompatible *IncompatibleVersionError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, "4.10.0", incompatible.Version)
	assert.Equal(t, "4.20.0", incompatible.MinVersion)
}

// TestResolveUnparseableVersion tests that a version string that fails to
// parse resolves as incompatible, preserving the raw string
func TestResolveUnparseableVersion(t *testing.T) {
	srv, _ := newTestServer(t, "definitely-not-semver", nil)

	_, err := Resolve(context.Background(), srv.URL, "key")

	var incompatible *IncompatibleVersionError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, "definitely-not-semver", incompatible.Version)
}

// TestResolveUnauthorized tests that a rejected API key surfaces during
// resolution
func TestResolveUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"API key not valid","extensions":{"code":"UNAUTHENTICATED"}}]}`))
	}))
	defer srv.Close()

	_, err := Resolve(context.Background(), srv.URL, "bad-key")

	var unauthorized *graphql.UnauthorizedError
	assert.ErrorAs(t, err, &unauthorized)
}

// TestResolveUnreachableHost tests transport error propagation
func TestResolveUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := Resolve(context.Background(), srv.URL, "key")

	var terr *graphql.TransportError
	assert.ErrorAs(t, err, &terr)
}

// TestVariantTableOrder tests that the table stays newest-first so
// resolution picks the highest satisfied minimum
func TestVariantTableOrder(t *testing.T) {
	for i := 1; i < len(variantTable); i++ {
		assert.True(t, variantTable[i-1].min.GreaterThan(variantTable[i].min),
			"variant table must be ordered newest first")
	}
}
