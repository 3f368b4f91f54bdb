package client

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nexum/crypto"
)

func TestNewRejectsBadScheme(t *testing.T) {
	_, err := New("ftp://example.com")
	require.Error(t, err)
}

func TestDepositSendsTokenAndIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/vault/deposit", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NotEmpty(t, r.Header.Get(headerIdempotency))
		require.Empty(t, r.Header.Get(headerSignature))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "250", body["amount"])
		_ = json.NewEncoder(w).Encode(map[string]string{"shares": "250"})
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/", WithToken("tok"))
	require.NoError(t, err)
	shares, err := c.Deposit(context.Background(), "250")
	require.NoError(t, err)
	require.Equal(t, "250", shares)
}

func TestMintIsCosigned(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	expected := key.PubKey().Address()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Equal(t, expected.String(), r.Header.Get(headerCosigner))
		sig, err := hex.DecodeString(strings.TrimPrefix(r.Header.Get(headerSignature), "0x"))
		require.NoError(t, err)
		signer, err := crypto.RecoverSigner(body, sig)
		require.NoError(t, err)
		require.Equal(t, expected.Raw(), signer)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":4}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithToken("tok"), WithCosigner(key))
	require.NoError(t, err)
	id, err := c.MintReceivable(context.Background(), MintRequest{FaceValue: "100", Currency: "USDC", MaturityDate: 1_800_000_000})
	require.NoError(t, err)
	require.Equal(t, uint64(4), id)
}

func TestAPIErrorDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"rejected","error":"lending: rejected: ltv exceeded"}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	_, err = c.Borrow(context.Background(), []uint64{1}, "10", time.Hour)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	require.Equal(t, "rejected", apiErr.Code)
}

func TestEventsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "vault", r.URL.Query().Get("module"))
		require.Equal(t, "9", r.URL.Query().Get("after"))
		require.Empty(t, r.Header.Get(headerIdempotency))
		_, _ = w.Write([]byte(`{"events":[{"id":"x","sequence":10,"module":"vault","type":"vault.deposit","payload":"{}"}]}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	events, err := c.Events(context.Background(), "vault", 9, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, uint64(10), events[0].Sequence)
}
