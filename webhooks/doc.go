// Package webhooks contains the inbound verification and ingestion pipeline.
//
// Each delivery runs verify -> parse -> validate -> store independently;
// there is no cross-request state. Duplicate suppression lives in the
// store's unique constraint on the natural request id, so replays from an
// at-least-once sender resolve to a DUPLICATE outcome instead of a second
// record.
package webhooks
