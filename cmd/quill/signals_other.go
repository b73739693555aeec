//go:build windows || plan9

package main

import "os"

// No rotate signal; use the logRotate admin command.
var rotateSignals []os.Signal
