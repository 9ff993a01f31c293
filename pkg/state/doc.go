// Package state persists the coordinator's known entity identities in a
// local bbolt database so that one-time discovery notifications stay
// one-time across process restarts. The store is optional; without it the
// coordinator starts every session with empty identity sets.
package state
