// Package tracer provides a lightweight tracing abstraction for calls that leave the
// canonical store: search index writes and outbound notification sends.
//
// Implementations:
//   - NoopTracer: for tests
//   - OTelTracer: OpenTelemetry adapter for production
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, marking it failed when err is non-nil.
	// End must be called exactly once, typically via defer.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int creates an int attribute.
func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashContact returns a short SHA-256 prefix of a phone number so traces can be
// correlated without carrying the number itself.
func HashContact(contact string) string {
	if contact == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(contact))
	return hex.EncodeToString(hash[:8])
}

// Span names.
const (
	SpanSearchIndex  = "search.index"
	SpanSearchRemove = "search.remove"
	SpanSearchBulk   = "search.bulk_reindex"
	SpanNotifySend   = "notify.send"
	SpanReconcileRun = "reconcile.sweep"
)

// Attribute keys.
const (
	AttrVoterID     = "voter.id"
	AttrReferenceID = "reference.id"
	AttrContactHash = "contact.hash"
	AttrBatchSize   = "batch.size"
	AttrOutcome     = "outcome"
	AttrStale       = "stale"
)
