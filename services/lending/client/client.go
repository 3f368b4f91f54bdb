// Package client is a thin HTTP client for the lendingd REST API.
package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"nexum/crypto"
)

// Header names understood by lendingd.
const (
	headerCosigner    = "X-Nexum-Cosigner"
	headerSignature   = "X-Nexum-Signature"
	headerIdempotency = "Idempotency-Key"
)

// Client calls a lendingd endpoint. Mutations carry the bearer token and a
// fresh idempotency key; when a co-signer is configured the request body is
// signed as well.
type Client struct {
	base     *url.URL
	http     *http.Client
	token    string
	cosigner *crypto.PrivateKey
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport. Useful for TLS client certificates.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken sets the bearer token attached to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithCosigner signs mutation bodies with key, adding its address as an
// acting principal.
func WithCosigner(key *crypto.PrivateKey) Option {
	return func(c *Client) { c.cosigner = key }
}

// New parses baseURL and applies opts.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("endpoint must use http or https, got %q", baseURL)
	}
	c := &Client{base: parsed, http: &http.Client{Timeout: 15 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("lendingd: http %d", e.Status)
	}
	return fmt.Sprintf("lendingd: %s (%d): %s", e.Code, e.Status, e.Message)
}

// Do sends body as JSON and decodes the response into out when non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if method != http.MethodGet {
		req.Header.Set(headerIdempotency, uuid.NewString())
		if c.cosigner != nil {
			sig, err := c.cosigner.Sign(payload)
			if err != nil {
				return fmt.Errorf("co-sign request: %w", err)
			}
			req.Header.Set(headerCosigner, c.cosigner.PubKey().Address().String())
			req.Header.Set(headerSignature, "0x"+hex.EncodeToString(sig))
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// MintRequest describes a receivable to tokenise.
type MintRequest struct {
	Creditor     string `json:"creditor,omitempty"`
	DebtorHash   string `json:"debtorHash,omitempty"`
	FaceValue    string `json:"faceValue"`
	Currency     string `json:"currency"`
	MaturityDate uint64 `json:"maturityDate"`
	ProofHash    string `json:"proofHash,omitempty"`
	RiskScore    uint64 `json:"riskScore"`
	MetadataURI  string `json:"metadataUri,omitempty"`
}

// Receivable mirrors the server representation.
type Receivable struct {
	ID               uint64 `json:"id"`
	Owner            string `json:"owner"`
	OriginalCreditor string `json:"originalCreditor"`
	DebtorHash       string `json:"debtorHash"`
	FaceValue        string `json:"faceValue"`
	Currency         string `json:"currency"`
	IssuanceDate     uint64 `json:"issuanceDate"`
	MaturityDate     uint64 `json:"maturityDate"`
	ProofHash        string `json:"proofHash"`
	Status           string `json:"status"`
	RiskScore        uint64 `json:"riskScore"`
	MetadataURI      string `json:"metadataUri"`
}

// Loan mirrors the server representation.
type Loan struct {
	ID                 uint64   `json:"id"`
	Borrower           string   `json:"borrower"`
	ReceivableIDs      []uint64 `json:"receivableIds"`
	CollateralValue    string   `json:"collateralValue"`
	Principal          string   `json:"principal"`
	InterestRate       uint64   `json:"interestRateBps"`
	AccruedInterest    string   `json:"accruedInterest"`
	BorrowedAt         uint64   `json:"borrowedAt"`
	LastInterestUpdate uint64   `json:"lastInterestUpdate"`
	DueDate            uint64   `json:"dueDate"`
	Status             string   `json:"status"`
}

// Health is the current loan-to-value projection of a loan.
type Health struct {
	LoanID          uint64 `json:"loanId"`
	Debt            string `json:"debt"`
	CollateralValue string `json:"collateralValue"`
	LTV             string `json:"ltvBps"`
	Liquidatable    bool   `json:"liquidatable"`
	Overdue         bool   `json:"overdue"`
}

// Liquidation reports the outcome of a liquidation.
type Liquidation struct {
	LoanID     uint64   `json:"loanId"`
	Liquidator string   `json:"liquidator"`
	Debt       string   `json:"debt"`
	Penalty    string   `json:"penalty"`
	Recovered  string   `json:"recovered"`
	Shortfall  string   `json:"shortfall"`
	Seized     []uint64 `json:"seized"`
}

// Repayment reports the balance left after a repayment.
type Repayment struct {
	LoanID    uint64 `json:"loanId"`
	Remaining string `json:"remaining"`
	Closed    bool   `json:"closed"`
}

// Vault is the pool snapshot.
type Vault struct {
	BaseAsset           string `json:"baseAsset"`
	TotalDeposits       string `json:"totalDeposits"`
	TotalShares         string `json:"totalShares"`
	TotalBorrowed       string `json:"totalBorrowed"`
	TotalInterestEarned string `json:"totalInterestEarned"`
	ProtocolReserves    string `json:"protocolReserves"`
	TotalAssets         string `json:"totalAssets"`
	AvailableLiquidity  string `json:"availableLiquidity"`
	UtilizationBps      uint64 `json:"utilizationBps"`
	ReserveFactorBps    uint64 `json:"reserveFactorBps"`
	MaxUtilizationBps   uint64 `json:"maxUtilizationBps"`
	MinDeposit          string `json:"minDeposit"`
	Paused              bool   `json:"paused"`
}

// Event is an archived protocol event.
type Event struct {
	ID       string `json:"id"`
	Sequence uint64 `json:"sequence"`
	Module   string `json:"module"`
	Type     string `json:"type"`
	// Payload is the JSON encoded event body.
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

// MintReceivable tokenises a receivable. The verifier must co-sign, so the
// client should be built WithCosigner.
func (c *Client) MintReceivable(ctx context.Context, req MintRequest) (uint64, error) {
	var out struct {
		ID uint64 `json:"id"`
	}
	if err := c.Do(ctx, http.MethodPost, "/v1/receivables", req, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// Receivable fetches a receivable by id.
func (c *Client) Receivable(ctx context.Context, id uint64) (*Receivable, error) {
	var out Receivable
	if err := c.Do(ctx, http.MethodGet, "/v1/receivables/"+strconv.FormatUint(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Deposit adds liquidity for the token subject and returns the minted shares.
func (c *Client) Deposit(ctx context.Context, amount string) (string, error) {
	var out struct {
		Shares string `json:"shares"`
	}
	if err := c.Do(ctx, http.MethodPost, "/v1/vault/deposit", map[string]string{"amount": amount}, &out); err != nil {
		return "", err
	}
	return out.Shares, nil
}

// Withdraw burns shares and returns the amount paid out.
func (c *Client) Withdraw(ctx context.Context, shares string) (string, error) {
	var out struct {
		Amount string `json:"amount"`
	}
	if err := c.Do(ctx, http.MethodPost, "/v1/vault/withdraw", map[string]string{"shares": shares}, &out); err != nil {
		return "", err
	}
	return out.Amount, nil
}

// Vault returns the pool snapshot.
func (c *Client) Vault(ctx context.Context) (*Vault, error) {
	var out Vault
	if err := c.Do(ctx, http.MethodGet, "/v1/vault", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Borrow opens a loan against the listed receivables.
func (c *Client) Borrow(ctx context.Context, receivableIDs []uint64, amount string, duration time.Duration) (*Loan, error) {
	body := map[string]any{
		"receivableIds":   receivableIDs,
		"amount":          amount,
		"durationSeconds": uint64(duration / time.Second),
	}
	var out Loan
	if err := c.Do(ctx, http.MethodPost, "/v1/loans", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Repay pays down a loan, interest first.
func (c *Client) Repay(ctx context.Context, loanID uint64, amount string) (*Repayment, error) {
	var out Repayment
	path := "/v1/loans/" + strconv.FormatUint(loanID, 10) + "/repay"
	if err := c.Do(ctx, http.MethodPost, path, map[string]string{"amount": amount}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Liquidate seizes the collateral of an unhealthy or overdue loan.
func (c *Client) Liquidate(ctx context.Context, loanID uint64) (*Liquidation, error) {
	var out Liquidation
	path := "/v1/loans/" + strconv.FormatUint(loanID, 10) + "/liquidate"
	if err := c.Do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Loan fetches a loan by id.
func (c *Client) Loan(ctx context.Context, loanID uint64) (*Loan, error) {
	var out Loan
	if err := c.Do(ctx, http.MethodGet, "/v1/loans/"+strconv.FormatUint(loanID, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health returns the live loan-to-value of a loan.
func (c *Client) Health(ctx context.Context, loanID uint64) (*Health, error) {
	var out Health
	path := "/v1/loans/" + strconv.FormatUint(loanID, 10) + "/health"
	if err := c.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetPaused toggles a module's circuit breaker.
func (c *Client) SetPaused(ctx context.Context, module string, paused bool) error {
	action := "unpause"
	if paused {
		action = "pause"
	}
	return c.Do(ctx, http.MethodPost, "/v1/admin/"+url.PathEscape(module)+"/"+action, nil, nil)
}

// Events pages through the archived event log.
func (c *Client) Events(ctx context.Context, module string, after uint64, limit int) ([]Event, error) {
	query := url.Values{}
	if module != "" {
		query.Set("module", module)
	}
	if after > 0 {
		query.Set("after", strconv.FormatUint(after, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/events"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out struct {
		Events []Event `json:"events"`
	}
	if err := c.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}
