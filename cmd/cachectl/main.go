// Command cachectl is a diagnostic CLI over an RFB cache coordinator
// directory: start a coordinator in the foreground (serve), query a
// running one's stats (stats), or drive one interactively (shell).
package main

import (
	"os"
	"os/signal"
	"syscall"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exitCode := Run(os.Stdin, os.Stdout, os.Stderr, os.Args, sigCh)

	os.Exit(exitCode)
}
