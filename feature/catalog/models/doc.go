// Package models defines the catalog data shared by both upstream catalog adapters
// and the reconciliation pipeline: records, holdings, items, bound-with references
// and the immutable location lookup.
//
// Holdings and items are always derived fresh from the upstream store on each pass.
// The pipeline mutates only derived fields (item summaries, backfilled enumeration,
// placeholder status) and never writes them back upstream.
package models
