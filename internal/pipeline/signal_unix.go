//go:build !windows

package pipeline

import "syscall"

var sigterm = syscall.SIGTERM
