// Package core contains the canonical transaction domain contracts, entities,
// and the ingestion gate. Storage and transport adapters must depend on this
// package; core must not depend on any adapter.
package core
