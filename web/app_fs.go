// Package web serves the joystick page and runs one control session per connected page.
package web

import "embed"

// AppFS holds the joystick page.
//
//go:embed static
var AppFS embed.FS
