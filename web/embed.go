// Package web embeds the built review UI for single-binary distribution.
package web

import "embed"

// Assets contains the review UI production build output.
// The build/ directory is replaced by the frontend build; the checked-in
// index.html is a minimal fallback page.
//
//go:embed all:build
var Assets embed.FS
