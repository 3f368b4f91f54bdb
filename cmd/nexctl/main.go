// Command nexctl is the operator CLI for lendingd: key management, token
// minting, genesis scaffolding and remote calls against the REST API.
package main

import (
	"fmt"
	"io"
	"os"
)

const (
	defaultPassEnv   = "NEXCTL_KEYSTORE_PASS"
	defaultSecretEnv = "NEXCTL_HMAC_SECRET"
	defaultTokenEnv  = "NEXCTL_TOKEN"
	defaultEndpoint  = "http://127.0.0.1:8443"
)

type command struct {
	name    string
	summary string
	run     func(args []string, stdout io.Writer) error
}

func commands() []command {
	return []command{
		{"keygen", "generate a key and write it to an encrypted keystore", runKeygen},
		{"address", "print the address held by a keystore", runAddress},
		{"sign", "co-sign a request body with a keystore key", runSign},
		{"token", "mint an HS256 bearer token for a principal", runToken},
		{"genesis-init", "write a genesis document with default parameters", runGenesisInit},
		{"vault", "show the vault snapshot", runVault},
		{"deposit", "deposit liquidity into the vault", runDeposit},
		{"withdraw", "burn vault shares", runWithdraw},
		{"borrow", "open a loan against receivables", runBorrow},
		{"repay", "repay a loan", runRepay},
		{"liquidate", "liquidate an unhealthy or overdue loan", runLiquidate},
		{"loan", "show a loan and its health", runLoan},
		{"pause", "pause a module", runPause(true)},
		{"unpause", "unpause a module", runPause(false)},
		{"events", "list archived protocol events", runEvents},
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 2
	}
	for _, cmd := range commands() {
		if cmd.name != args[0] {
			continue
		}
		if err := cmd.run(args[1:], stdout); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
	usage(stderr)
	return 2
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: nexctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands() {
		fmt.Fprintf(w, "  %-14s %s\n", cmd.name, cmd.summary)
	}
}
