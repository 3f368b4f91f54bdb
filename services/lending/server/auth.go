package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"nexum/core/auth"
	"nexum/crypto"
	"nexum/observability/logging"
)

const (
	// HeaderCosigner names the bech32 principal co-signing the request body.
	HeaderCosigner = "X-Nexum-Cosigner"
	// HeaderSignature carries the hex encoded secp256k1 signature over the
	// keccak digest of the request body.
	HeaderSignature = "X-Nexum-Signature"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
	errCosignature  = errors.New("invalid co-signature")
	errReplayed     = errors.New("co-signature already used")
)

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
	// CosignTTL bounds how long a used co-signature is remembered.
	CosignTTL time.Duration
}

// ReplayGuard remembers co-signed bodies so a signature cannot be replayed.
// Keys combine the body digest with the co-signer.
type ReplayGuard interface {
	Observe(ctx context.Context, key []byte, at time.Time) (bool, error)
}

type principalContextKey struct{}

// PrincipalFrom returns the bearer token subject attached by the
// authenticator.
func PrincipalFrom(ctx context.Context) ([20]byte, bool) {
	if ctx == nil {
		return [20]byte{}, false
	}
	value, ok := ctx.Value(principalContextKey{}).([20]byte)
	return value, ok
}

// Authenticator resolves the acting principals of a request: the JWT
// subject, plus an optional co-signer recovered from the body signature.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
	replay ReplayGuard
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewAuthenticator builds an authenticator. replay may be nil, in which case
// co-signatures are verified but not deduplicated.
func NewAuthenticator(cfg AuthConfig, replay ReplayGuard, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	if cfg.CosignTTL <= 0 {
		cfg.CosignTTL = 24 * time.Hour
	}
	return &Authenticator{
		cfg:    cfg,
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
		replay: replay,
		logger: logger,
		nowFn:  time.Now,
	}
}

// Middleware rejects requests without a valid bearer token and attaches the
// resolved principals to the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := a.authenticate(r)
		if err != nil {
			a.logger.Debug("lending auth rejected",
				slog.String("path", r.URL.Path),
				logging.MaskField("authorization", r.Header.Get("Authorization")),
				slog.String("cosigner", logging.MaskAddress(r.Header.Get(HeaderCosigner))),
				slog.Any("error", err))
			writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "unauthorized", Error: err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (context.Context, error) {
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return nil, errMissingToken
	}
	subject, err := a.parseSubject(tokenString)
	if err != nil {
		return nil, err
	}
	ctx := context.WithValue(r.Context(), principalContextKey{}, subject)
	ctx = auth.WithPrincipals(ctx, subject)

	cosigner := strings.TrimSpace(r.Header.Get(HeaderCosigner))
	signature := strings.TrimSpace(r.Header.Get(HeaderSignature))
	if cosigner == "" && signature == "" {
		return ctx, nil
	}
	return a.verifyCosignature(ctx, r, cosigner, signature)
}

func (a *Authenticator) parseSubject(tokenString string) ([20]byte, error) {
	if len(a.secret) == 0 {
		return [20]byte{}, fmt.Errorf("%w: auth secret not configured", errInvalidToken)
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(a.nowFn),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return [20]byte{}, errInvalidToken
	}
	subject, err := crypto.ParseAddress(strings.TrimSpace(claims.Subject))
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: subject must be a nex address", errInvalidToken)
	}
	return subject, nil
}

func (a *Authenticator) verifyCosignature(ctx context.Context, r *http.Request, cosigner, signature string) (context.Context, error) {
	if cosigner == "" || signature == "" {
		return nil, fmt.Errorf("%w: %s and %s must be sent together", errCosignature, HeaderCosigner, HeaderSignature)
	}
	expected, err := crypto.ParseAddress(cosigner)
	if err != nil {
		return nil, fmt.Errorf("%w: bad cosigner address", errCosignature)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: signature must be hex", errCosignature)
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, defaultMaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body", errCosignature)
	}
	if int64(len(body)) > defaultMaxBodyBytes {
		return nil, fmt.Errorf("%w: body too large", errCosignature)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	signed, err := auth.CoSigned(ctx, expected, body, sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCosignature, err)
	}
	if a.replay != nil {
		key := append(crypto.Digest(body), expected[:]...)
		seen, err := a.replay.Observe(ctx, key, a.nowFn())
		if err != nil {
			return nil, fmt.Errorf("%w: replay check failed", errCosignature)
		}
		if seen {
			return nil, errReplayed
		}
	}
	return signed, nil
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
