// Package coordinator orchestrates data collection from an Unraid server:
// periodic full-snapshot polls through the resolved API client, one-time
// discovery notifications for newly seen entities, and eager patching of
// the live snapshot from push-stream messages arriving between polls.
//
// Readers always observe a complete snapshot; each refresh builds a fresh
// one and swaps it in atomically. Refreshes are serialized: a refresh in
// progress absorbs concurrent requests instead of issuing a second network
// round trip.
package coordinator
