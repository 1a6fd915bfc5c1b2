package main

import (
	"os"
)

// Exit codes
const (
	ExitSuccess        = 0
	ExitGeneralError   = 1
	ExitInvalidArgs    = 2
	ExitConnectFailed  = 3
	ExitTransferFailed = 4
	ExitTimeout        = 5
	ExitOutputError    = 6
	ExitHTTPError      = 7
	ExitStorageError   = 8
	ExitInterrupted    = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	return runFetch(args, os.Stdout, os.Stderr)
}
