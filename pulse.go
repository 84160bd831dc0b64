// Package pulse holds the embedded assets shared by the binaries.
package pulse

import "embed"

//go:embed static/*
var StaticFiles embed.FS
