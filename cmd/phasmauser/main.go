// Package main provides phasmauser, the user-provisioning CLI: it
// generates an RSA key pair for a new PhasmaDB user, registers the
// public half with the server's key directory, and writes the private
// half to a file the user must keep secret and never transmit.
package main

import (
	"fmt"
	"os"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func usage() {
	fmt.Fprintln(os.Stderr, "phasmauser - PhasmaDB user provisioning")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  phasmauser new_user <username> <private_key_outfile> [--public-keys <dir>] [--passphrase]")
	fmt.Fprintln(os.Stderr, "  phasmauser version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "new_user":
		runNewUser(os.Args[2:])
	case "version":
		fmt.Printf("phasmauser %s (commit: %s)\n", version, commit)
	default:
		usage()
		os.Exit(2)
	}
}
