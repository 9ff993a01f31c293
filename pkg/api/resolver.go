package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"

	"github.com/nasmon/unraid/pkg/graphql"
)

// IncompatibleVersionError is returned by Resolve when the server reports
// an API version older than the lowest supported variant. Both versions
// are carried so they can be shown to the end user.
type IncompatibleVersionError struct {
	Version    string
	MinVersion string
}

func (e *IncompatibleVersionError) Error() string {
	return fmt.Sprintf("incompatible API version %s (minimum supported: %s)", e.Version, e.MinVersion)
}

// variantEntry maps a minimum API version onto a variant constructor. The
// table is ordered newest first; resolution picks the first (highest)
// minimum that is satisfied by the reported version.
type variantEntry struct {
	min   *semver.Version
	build func(baseClient) Client
}

var variantTable = []variantEntry{
	{min: semver.MustParse("4.26.0"), build: newClientV426},
	{min: semver.MustParse("4.20.0"), build: newClientV420},
}

// minSupportedVersion is the lowest minimum in the variant table.
var minSupportedVersion = variantTable[len(variantTable)-1].min

// versionFloor stands in for version strings that fail to parse; it sorts
// below every variant minimum and routes to the incompatibility failure.
var versionFloor = semver.New(0, 0, 0, "", "")

// Option configures client resolution.
type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

// WithHTTPClient replaces the default HTTP client used by the transport.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger sets the logger for the client and its subscription channel.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Resolve queries the server's API version and returns the client variant
// matching it: the variant with the highest minimum version that is less
// than or equal to the reported version. Build metadata after a "+" is
// ignored for comparison. One network round trip, no other side effects.
func Resolve(ctx context.Context, host, apiKey string, opts ...Option) (Client, error) {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	topts := []graphql.TransportOption{graphql.WithLogger(o.logger)}
	if o.httpClient != nil {
		topts = append(topts, graphql.WithHTTPClient(o.httpClient))
	}
	transport, err := graphql.NewTransport(host, apiKey, topts...)
	if err != nil {
		return nil, err
	}

	reported, raw, err := queryVersion(ctx, transport)
	if err != nil {
		return nil, err
	}

	for _, entry := range variantTable {
		if !reported.LessThan(entry.min) {
			base := baseClient{
				transport: transport,
				stream:    graphql.NewStream(transport, o.logger),
				version:   reported,
				log:       o.logger,
			}
			o.logger.Debug().
				Str("reported", raw).
				Str("variant", entry.min.String()).
				Msg("resolved API client variant")
			return entry.build(base), nil
		}
	}

	return nil, &IncompatibleVersionError{
		Version:    raw,
		MinVersion: minSupportedVersion.String(),
	}
}

// queryVersion issues the ApiVersion query and parses the result, stripping
// any build-metadata suffix. Unparseable versions resolve to the floor
// version so they fall below every variant minimum.
func queryVersion(ctx context.Context, transport *graphql.Transport) (*semver.Version, string, error) {
	data, err := transport.Call(ctx, opAPIVersion, queryAPIVersion, nil)
	if err != nil {
		return nil, "", err
	}

	var payload apiVersionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, "", &graphql.InvalidResponseError{Err: fmt.Errorf("operation %s: %w", opAPIVersion, err)}
	}

	raw := payload.Info.Versions.Core.API
	stripped, _, _ := strings.Cut(raw, "+")

	version, err := semver.NewVersion(stripped)
	if err != nil {
		return versionFloor, raw, nil
	}
	return version, raw, nil
}
