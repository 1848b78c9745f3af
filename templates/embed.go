// Package templates embeds the default configuration and the coordinator
// dashboard page.
package templates

import "embed"

//go:embed config.yaml dashboard.html
var FS embed.FS
