// Package embedded provides embedded static assets for the application.
package embedded

import "embed"

// Files contains the compliance guardrail's disclaimer table
// (disclaimers.json): per-region, per-asset-class paragraphs keyed by
// regulator flavor (SEC/FINRA, MiFID II/ESMA, FCA, JFSA, global fallback).
//
// This is loaded as data, not imported as a Go package, so the guardrail
// never needs to reference the narrative or cache layers to build a
// disclaimer: breaking that cycle is the whole point of keeping it here.
//
//go:embed disclaimers.json
var Files embed.FS
