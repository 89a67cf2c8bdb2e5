// Package dashboard provides the embedded web UI assets for CarePulse.
//
// The page is a Go html/template: the server renders the current stat cards
// into it, and an SSE script then replaces each card as updates arrive.
// Users of the carepulse library should not need to interact with this
// package directly.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Page template with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
