// Package log provides structured logging for the Unraid client based on
// zerolog. Call Init once at startup, then derive component-scoped child
// loggers with WithComponent.
package log
