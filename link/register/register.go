// Package register registers all link transports.
package register

import (
	// register transports.
	_ "github.com/bledrive/bledrive/link/ble"
	_ "github.com/bledrive/bledrive/link/fake"
	_ "github.com/bledrive/bledrive/link/serial"
)
