package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/phasma-db/phasmadb/internal/identity"
)

// readPassphrase reads one line from stdin. It does not suppress
// terminal echo.
func readPassphrase() (string, error) {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runNewUser(args []string) {
	fs := flag.NewFlagSet("new_user", flag.ExitOnError)
	publicKeyDir := fs.String("public-keys", "public_keys", "Directory to register the new user's public key under")
	passphrase := fs.Bool("passphrase", false, "Prompt for a passphrase to protect the private key file at rest")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) >= 2 {
		// Flags may also follow the two positional arguments.
		fs.Parse(rest[2:])
		rest = append([]string{rest[0], rest[1]}, fs.Args()...)
	}
	if len(rest) != 2 {
		fmt.Fprintln(os.Stderr, "usage: phasmauser new_user <username> <private_key_outfile> [--public-keys <dir>] [--passphrase]")
		os.Exit(2)
	}
	username, outfile := rest[0], rest[1]

	var pass string
	if *passphrase {
		fmt.Fprint(os.Stderr, "Passphrase to protect the private key file: ")
		var err error
		pass, err = readPassphrase()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if err := identity.NewUser(username, *publicKeyDir, outfile, pass); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Done! Public key is stored in %s/%s.pem, private key has been written to %s\n", *publicKeyDir, username, outfile)
}
