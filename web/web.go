// Package web embeds the placeholder sink page. The sink's real UI is
// out of scope for this core (§4.6); this package only hosts bytes.
package web

import (
	_ "embed"
)

//go:embed static/index.html
var indexHTML []byte

// IndexHTML returns the bytes served at GET /.
func IndexHTML() []byte { return indexHTML }
