package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"nexum/services/lending/client"
)

type remoteFlags struct {
	endpoint string
	token    string
	keystore string
	passEnv  string
	timeout  time.Duration
}

func newRemoteFlags(name string) (*flag.FlagSet, *remoteFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	rf := &remoteFlags{}
	endpoint := os.Getenv("NEXCTL_ENDPOINT")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	fs.StringVar(&rf.endpoint, "endpoint", endpoint, "lendingd base URL")
	fs.StringVar(&rf.token, "token", os.Getenv(defaultTokenEnv), "Bearer token (defaults to $"+defaultTokenEnv+")")
	fs.StringVar(&rf.keystore, "cosign-keystore", "", "Keystore used to co-sign the request body")
	fs.StringVar(&rf.passEnv, "pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	fs.DurationVar(&rf.timeout, "timeout", 15*time.Second, "Request timeout")
	return fs, rf
}

func (rf *remoteFlags) dial() (*client.Client, context.Context, context.CancelFunc, error) {
	opts := []client.Option{client.WithToken(rf.token)}
	if rf.keystore != "" {
		key, err := loadKey(rf.keystore, rf.passEnv)
		if err != nil {
			return nil, nil, nil, err
		}
		opts = append(opts, client.WithCosigner(key))
	}
	c, err := client.New(rf.endpoint, opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), rf.timeout)
	return c, ctx, cancel, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func positional(fs *flag.FlagSet, n int, names string) ([]string, error) {
	if fs.NArg() != n {
		return nil, fmt.Errorf("expected %s", names)
	}
	return fs.Args(), nil
}

func parseLoanID(value string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid loan id %q", value)
	}
	return id, nil
}

func runVault(args []string, stdout io.Writer) error {
	fs, rf := newRemoteFlags("vault")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, ctx, cancel, err := rf.dial()
	if err != nil {
		return err
	}
	defer cancel()
	snapshot, err := c.Vault(ctx)
	if err != nil {
		return err
	}
	return printJSON(stdout, snapshot)
}

func runDeposit(args []string, stdout io.Writer) error {
	fs, rf := newRemoteFlags("deposit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest, err := positional(fs, 1, "<amount>")
	if err != nil {
		return err
	}
	c, ctx, cancel, err := rf.dial()
	if err != nil {
		return err
	}
	defer cancel()
	shares, err := c.Deposit(ctx, rest[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "shares: %s\n", shares)
	return nil
}

func runWithdraw(args []string, stdout io.Writer) error {
	fs, rf := newRemoteFlags("withdraw")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest, err := positional(fs, 1, "<shares>")
	if err != nil {
		return err
	}
	c, ctx, cancel, err := rf.dial()
	if err != nil {
		return err
	}
	defer cancel()
	amount, err := c.Withdraw(ctx, rest[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "amount: %s\n", amount)
	return nil
}

func runBorrow(args []string, stdout io.Writer) error {
	fs, rf := newRemoteFlags("borrow")
	ids := fs.String("receivables", "", "Comma separated receivable ids pledged as collateral")
	amount := fs.String("amount", "", "Principal to borrow")
	duration := fs.Duration("duration", 30*24*time.Hour, "Loan term")
	if err := fs.Parse(args); err != nil {
		return err
	}
	parsed, err := parseIDs(*ids)
	if err != nil {
		return err
	}
	c, ctx, cancel, err := rf.dial()
	if err != nil {
		return err
	}
	defer cancel()
	loan, err := c.Borrow(ctx, parsed, *amount, *duration)
	if err != nil {
		return err
	}
	return printJSON(stdout, loan)
}

func parseIDs(value string) ([]uint64, error) {
	var out []uint64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid receivable id %q", part)
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one receivable id is required")
	}
	return out, nil
}

func runRepay(args []string, stdout io.Writer) error {
	fs, rf := newRemoteFlags("repay")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest, err := positional(fs, 2, "<loan-id> <amount>")
	if err != nil {
		return err
	}
	id, err := parseLoanID(rest[0])
	if err != nil {
		return err
	}
	c, ctx, cancel, err := rf.dial()
	if err != nil {
		return err
	}
	defer cancel()
	result, err := c.Repay(ctx, id, rest[1])
	if err != nil {
		return err
	}
	return printJSON(stdout, result)
}

func runLiquidate(args []string, stdout io.Writer) error {
	fs, rf := newRemoteFlags("liquidate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest, err := positional(fs, 1, "<loan-id>")
	if err != nil {
		return err
	}
	id, err := parseLoanID(rest[0])
	if err != nil {
		return err
	}
	c, ctx, cancel, err := rf.dial()
	if err != nil {
		return err
	}
	defer cancel()
	result, err := c.Liquidate(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(stdout, result)
}

func runLoan(args []string, stdout io.Writer) error {
	fs, rf := newRemoteFlags("loan")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest, err := positional(fs, 1, "<loan-id>")
	if err != nil {
		return err
	}
	id, err := parseLoanID(rest[0])
	if err != nil {
		return err
	}
	c, ctx, cancel, err := rf.dial()
	if err != nil {
		return err
	}
	defer cancel()
	loan, err := c.Loan(ctx, id)
	if err != nil {
		return err
	}
	health, err := c.Health(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(stdout, map[string]any{"loan": loan, "health": health})
}

func runPause(paused bool) func([]string, io.Writer) error {
	name := "unpause"
	if paused {
		name = "pause"
	}
	return func(args []string, stdout io.Writer) error {
		fs, rf := newRemoteFlags(name)
		if err := fs.Parse(args); err != nil {
			return err
		}
		rest, err := positional(fs, 1, "<module>")
		if err != nil {
			return err
		}
		c, ctx, cancel, err := rf.dial()
		if err != nil {
			return err
		}
		defer cancel()
		if err := c.SetPaused(ctx, rest[0], paused); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s: paused=%t\n", rest[0], paused)
		return nil
	}
}

func runEvents(args []string, stdout io.Writer) error {
	fs, rf := newRemoteFlags("events")
	module := fs.String("module", "", "Only events from this module")
	after := fs.Uint64("after", 0, "Only events with a greater sequence")
	limit := fs.Int("limit", 0, "Maximum number of events")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, ctx, cancel, err := rf.dial()
	if err != nil {
		return err
	}
	defer cancel()
	events, err := c.Events(ctx, *module, *after, *limit)
	if err != nil {
		return err
	}
	return printJSON(stdout, events)
}
