package passphrase

import (
	"errors"
	"strings"
	"testing"
)

func TestSourceUsesEnvironment(t *testing.T) {
	t.Setenv("NEXCTL_TEST_PASS", "correct horse")
	src := NewSource("NEXCTL_TEST_PASS")
	value, err := src.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != "correct horse" {
		t.Fatalf("unexpected passphrase %q", value)
	}
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("NEXCTL_TEST_PASS", "   ")
	_, err := NewSource("NEXCTL_TEST_PASS").Get()
	if err == nil || !strings.Contains(err.Error(), "set but empty") {
		t.Fatalf("expected empty passphrase error, got %v", err)
	}
}

func TestSourceCachesResult(t *testing.T) {
	calls := 0
	src := NewSource("NEXCTL_TEST_PASS")
	src.lookup = func(string) (string, bool) {
		calls++
		return "secret", true
	}
	for i := 0; i < 3; i++ {
		if _, err := src.Get(); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one lookup, got %d", calls)
	}
}

func TestSourceConfirmingPrompt(t *testing.T) {
	answers := [][]byte{[]byte("first"), []byte("second")}
	src := NewSource("").Confirming()
	src.prompt = &strings.Builder{}
	src.read = func() ([]byte, error) {
		next := answers[0]
		answers = answers[1:]
		return next, nil
	}
	if _, err := src.Get(); err == nil || !strings.Contains(err.Error(), "do not match") {
		t.Fatalf("expected mismatch error, got %v", err)
	}
}

func TestSourcePromptWithoutTerminal(t *testing.T) {
	src := NewSource("NEXCTL_UNSET_PASS")
	src.lookup = func(string) (string, bool) { return "", false }
	src.prompt = &strings.Builder{}
	src.read = func() ([]byte, error) { return nil, errors.New("stdin is not a terminal") }
	_, err := src.Get()
	if err == nil || !strings.Contains(err.Error(), "NEXCTL_UNSET_PASS") {
		t.Fatalf("expected hint about env var, got %v", err)
	}
}
