// Package scenarios embeds the built-in telemetry scenarios.
package scenarios

import "embed"

// FS holds every built-in scenario at its root.
//
//go:embed *.yaml
var FS embed.FS
