// Package metrics defines Prometheus collectors for the Unraid client:
// API request counts and latency, websocket message counts, poll cycle
// outcomes and entity discovery counters. Call Register once at startup
// and expose Handler on an HTTP mux to scrape them.
package metrics
