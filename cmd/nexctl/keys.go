package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"nexum/cmd/internal/passphrase"
	genesis "nexum/config"
	"nexum/crypto"
)

func runKeygen(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	out := fs.String("out", "nexum.keystore", "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	light := fs.Bool("light", false, "Use a cheap scrypt cost (development keys only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force {
		if _, err := os.Stat(*out); err == nil {
			return fmt.Errorf("keystore file %s already exists (use --force to overwrite)", *out)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	pass, err := passphrase.NewSource(*passEnv).Confirming().Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	cost := crypto.StandardKeystoreCost
	if *light {
		cost = crypto.LightKeystoreCost
	}
	if err := crypto.SaveToKeystoreWithCost(*out, key, pass, cost); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return nil
}

func loadKey(path, passEnv string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("keystore path required")
	}
	pass, err := passphrase.NewSource(passEnv).Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}
	return key, nil
}

func runAddress(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	keystore := fs.String("keystore", "nexum.keystore", "Keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := loadKey(*keystore, *passEnv)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return nil
}

// runSign prints the two headers lendingd expects for a co-signed body.
func runSign(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	keystore := fs.String("keystore", "nexum.keystore", "Keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	file := fs.String("body", "", "File holding the exact request body; - reads stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	body, err := readBody(*file)
	if err != nil {
		return err
	}
	key, err := loadKey(*keystore, *passEnv)
	if err != nil {
		return err
	}
	sig, err := key.Sign(body)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "X-Nexum-Cosigner: %s\n", key.PubKey().Address().String())
	fmt.Fprintf(stdout, "X-Nexum-Signature: 0x%x\n", sig)
	return nil
}

func readBody(path string) ([]byte, error) {
	switch strings.TrimSpace(path) {
	case "":
		return nil, fmt.Errorf("--body is required")
	case "-":
		return io.ReadAll(os.Stdin)
	default:
		return os.ReadFile(path)
	}
}

func runToken(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "Principal address the token acts for")
	secretEnv := fs.String("secret-env", defaultSecretEnv, "Environment variable containing the HMAC secret")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	issuer := fs.String("issuer", "", "Optional iss claim")
	audience := fs.String("audience", "", "Optional aud claim")
	if err := fs.Parse(args); err != nil {
		return err
	}
	signed, err := mintToken(*subject, os.Getenv(*secretEnv), *issuer, *audience, *ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, signed)
	return nil
}

func mintToken(subject, secret, issuer, audience string, ttl time.Duration, now time.Time) (string, error) {
	if _, err := crypto.ParseAddress(strings.TrimSpace(subject)); err != nil {
		return "", fmt.Errorf("subject: %w", err)
	}
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("hmac secret is empty")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive")
	}
	claims := jwt.RegisteredClaims{
		Subject:   strings.TrimSpace(subject),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
}

func runGenesisInit(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("genesis-init", flag.ContinueOnError)
	out := fs.String("out", "genesis.toml", "Output path")
	admin := fs.String("admin", "", "Admin address")
	verifier := fs.String("verifier", "", "Verifier address")
	asset := fs.String("asset", "USDC", "Vault base asset")
	var allocs allocFlag
	fs.Var(&allocs, "alloc", "Initial balance as address=amount (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	doc := genesis.Default()
	doc.Admin = strings.TrimSpace(*admin)
	doc.Verifier = strings.TrimSpace(*verifier)
	doc.Vault.BaseAsset = *asset
	doc.EnsureDefaults()
	for _, alloc := range allocs {
		alloc.Asset = doc.Vault.BaseAsset
		doc.Alloc = append(doc.Alloc, alloc)
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	if err := genesis.Write(*out, doc); err != nil {
		return fmt.Errorf("write genesis: %w", err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", *out)
	return nil
}

type allocFlag []genesis.Allocation

func (a *allocFlag) String() string { return fmt.Sprintf("%d allocations", len(*a)) }

func (a *allocFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("alloc must be address=amount")
	}
	*a = append(*a, genesis.Allocation{Address: strings.TrimSpace(parts[0]), Amount: strings.TrimSpace(parts[1])})
	return nil
}
