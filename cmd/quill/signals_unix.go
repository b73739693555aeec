//go:build !windows && !plan9

package main

import (
	"os"
	"syscall"
)

var rotateSignals = []os.Signal{syscall.SIGUSR1}
