package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	genesis "nexum/config"
	"nexum/crypto"
)

func testAddress(b byte) string {
	var raw [20]byte
	raw[0] = 0x42
	raw[19] = b
	return crypto.FromRaw(raw).String()
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"nope"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "genesis-init") {
		t.Fatalf("usage should list commands, got %q", stderr.String())
	}
}

func TestMintTokenRoundTrip(t *testing.T) {
	subject := testAddress(1)
	now := time.Now()
	signed, err := mintToken(subject, "secret", "nexum", "lendingd", time.Hour, now)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	claims := jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(signed, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	}, jwt.WithAudience("lendingd"), jwt.WithIssuer("nexum"))
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != subject {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
}

func TestMintTokenValidatesInput(t *testing.T) {
	if _, err := mintToken("not-an-address", "secret", "", "", time.Hour, time.Now()); err == nil {
		t.Fatal("expected subject error")
	}
	if _, err := mintToken(testAddress(1), " ", "", "", time.Hour, time.Now()); err == nil {
		t.Fatal("expected secret error")
	}
	if _, err := mintToken(testAddress(1), "secret", "", "", 0, time.Now()); err == nil {
		t.Fatal("expected ttl error")
	}
}

func TestGenesisInitWritesLoadableDocument(t *testing.T) {
	out := filepath.Join(t.TempDir(), "genesis.toml")
	var stdout, stderr bytes.Buffer
	code := run([]string{
		"genesis-init",
		"-out", out,
		"-admin", testAddress(1),
		"-verifier", testAddress(2),
		"-asset", "usdc",
		"-alloc", testAddress(3) + "=5000000",
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("genesis-init failed: %s", stderr.String())
	}
	doc, err := genesis.Load(out)
	if err != nil {
		t.Fatalf("load genesis: %v", err)
	}
	if doc.Vault.BaseAsset != "USDC" {
		t.Fatalf("unexpected base asset %q", doc.Vault.BaseAsset)
	}
	if len(doc.Alloc) != 1 || doc.Alloc[0].Value().String() != "5000000" {
		t.Fatalf("unexpected allocations: %+v", doc.Alloc)
	}
}

func TestKeygenAddressAndSign(t *testing.T) {
	t.Setenv(defaultPassEnv, "correct horse")
	dir := t.TempDir()
	keystore := filepath.Join(dir, "operator.json")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"keygen", "-out", keystore, "-light"}, &stdout, &stderr); code != 0 {
		t.Fatalf("keygen failed: %s", stderr.String())
	}
	generated := strings.TrimSpace(stdout.String())
	if _, err := crypto.ParseAddress(generated); err != nil {
		t.Fatalf("keygen printed %q: %v", generated, err)
	}

	stdout.Reset()
	if code := run([]string{"keygen", "-out", keystore, "-light"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected keygen to refuse overwrite, got %d", code)
	}

	stdout.Reset()
	if code := run([]string{"address", "-keystore", keystore}, &stdout, &stderr); code != 0 {
		t.Fatalf("address failed: %s", stderr.String())
	}
	if strings.TrimSpace(stdout.String()) != generated {
		t.Fatalf("address mismatch: %q vs %q", stdout.String(), generated)
	}

	body := filepath.Join(dir, "body.json")
	if err := os.WriteFile(body, []byte(`{"faceValue":"1"}`), 0o600); err != nil {
		t.Fatalf("write body: %v", err)
	}
	stdout.Reset()
	if code := run([]string{"sign", "-keystore", keystore, "-body", body}, &stdout, &stderr); code != 0 {
		t.Fatalf("sign failed: %s", stderr.String())
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 || lines[0] != "X-Nexum-Cosigner: "+generated {
		t.Fatalf("unexpected sign output %q", stdout.String())
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(lines[1], "X-Nexum-Signature: "), "0x"))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	signer, err := crypto.RecoverSigner([]byte(`{"faceValue":"1"}`), sig)
	if err != nil {
		t.Fatalf("recover signer: %v", err)
	}
	if crypto.FromRaw(signer).String() != generated {
		t.Fatalf("signature recovered to %s", crypto.FromRaw(signer).String())
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs(" 1, 2,,3 ")
	if err != nil {
		t.Fatalf("parse ids: %v", err)
	}
	if len(ids) != 3 || ids[2] != 3 {
		t.Fatalf("unexpected ids %v", ids)
	}
	if _, err := parseIDs(""); err == nil {
		t.Fatal("expected error for empty list")
	}
	if _, err := parseIDs("1,x"); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

func TestDepositCallsEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/vault/deposit" || r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"shares": "42"})
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := run([]string{"deposit", "-endpoint", srv.URL, "-token", "tok", "42"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("deposit failed: %s", stderr.String())
	}
	if strings.TrimSpace(stdout.String()) != "shares: 42" {
		t.Fatalf("unexpected output %q", stdout.String())
	}
}

func TestRemoteErrorsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"code":"paused","error":"operation paused"}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := run([]string{"repay", "-endpoint", srv.URL, "7", "10"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "paused") {
		t.Fatalf("expected paused error, got %q", stderr.String())
	}
}
