// Package graphql implements the wire protocol against an Unraid server's
// GraphQL endpoint: authenticated HTTP POST for queries and mutations, a
// typed error taxonomy distinguishing transport failures from server-side
// GraphQL errors, and a single shared graphql-transport-ws connection that
// multiplexes any number of named subscription streams.
//
// The package knows nothing about Unraid's schema; query text and payload
// decoding belong to the api package.
package graphql
