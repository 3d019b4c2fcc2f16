// Package httpapi exposes the ingestion pipeline and the stored-event read
// model over HTTP: the webhook receiver, the recent-events and stats reads,
// the health probe, and the Prometheus scrape endpoint.
package httpapi
