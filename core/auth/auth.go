// Package auth carries the principals that authorized the current operation
// and checks capability requirements against them.
package auth

import (
	"context"
	"errors"
	"fmt"

	"nexum/crypto"
	"nexum/native/common"
)

// Principal identifies a caller or a component identity.
type Principal = [20]byte

type principalsKey struct{}

// Authorizer aborts an operation when the required principal did not
// authorize it.
type Authorizer interface {
	Require(ctx context.Context, principal Principal) error
}

// ContextAuthorizer checks requirements against the principals attached to
// the context with WithPrincipals.
type ContextAuthorizer struct{}

// Require implements Authorizer.
func (ContextAuthorizer) Require(ctx context.Context, principal Principal) error {
	if Has(ctx, principal) {
		return nil
	}
	return fmt.Errorf("%w: %s", common.ErrNotAuthorized, crypto.FromRaw(principal))
}

// WithPrincipals returns a context that additionally carries the supplied
// principals. Existing principals are preserved.
func WithPrincipals(ctx context.Context, principals ...Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	existing := Principals(ctx)
	merged := make([]Principal, 0, len(existing)+len(principals))
	merged = append(merged, existing...)
	for _, p := range principals {
		if p == (Principal{}) || contains(merged, p) {
			continue
		}
		merged = append(merged, p)
	}
	return context.WithValue(ctx, principalsKey{}, merged)
}

// Principals returns the principals attached to ctx.
func Principals(ctx context.Context) []Principal {
	if ctx == nil {
		return nil
	}
	list, _ := ctx.Value(principalsKey{}).([]Principal)
	return list
}

// Has reports whether principal authorized the operation carried by ctx.
func Has(ctx context.Context, principal Principal) bool {
	if principal == (Principal{}) {
		return false
	}
	return contains(Principals(ctx), principal)
}

// CoSigned verifies sig over payload and attaches the recovered signer to ctx.
// The recovered signer must equal expected.
func CoSigned(ctx context.Context, expected Principal, payload, sig []byte) (context.Context, error) {
	signer, err := crypto.RecoverSigner(payload, sig)
	if err != nil {
		return ctx, err
	}
	if signer != expected {
		return ctx, ErrSignerMismatch
	}
	return WithPrincipals(ctx, signer), nil
}

// ErrSignerMismatch is returned when a signature recovers to a different
// principal than the one claimed.
var ErrSignerMismatch = errors.New("auth: signer does not match claimed principal")

func contains(list []Principal, p Principal) bool {
	for _, existing := range list {
		if existing == p {
			return true
		}
	}
	return false
}
