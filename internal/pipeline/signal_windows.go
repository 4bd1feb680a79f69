//go:build windows

package pipeline

import "os"

var sigterm = os.Interrupt
