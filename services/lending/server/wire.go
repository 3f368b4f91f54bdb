package server

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"strings"

	"nexum/crypto"
	"nexum/native/lending"
	"nexum/native/receivables"
	"nexum/native/vault"
	"nexum/services/lending/engine"
)

// defaultMaxBodyBytes bounds request bodies, including co-signed payloads.
const defaultMaxBodyBytes int64 = 1 << 20

type mintRequest struct {
	Creditor     string `json:"creditor"`
	DebtorHash   string `json:"debtorHash"`
	FaceValue    string `json:"faceValue"`
	Currency     string `json:"currency"`
	MaturityDate uint64 `json:"maturityDate"`
	ProofHash    string `json:"proofHash"`
	RiskScore    uint64 `json:"riskScore"`
	MetadataURI  string `json:"metadataUri"`
}

type transferRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type depositRequest struct {
	Depositor string `json:"depositor"`
	Amount    string `json:"amount"`
}

type withdrawRequest struct {
	Depositor string `json:"depositor"`
	Shares    string `json:"shares"`
}

type reservesRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type borrowRequest struct {
	Borrower      string   `json:"borrower"`
	ReceivableIDs []uint64 `json:"receivableIds"`
	Amount        string   `json:"amount"`
	Duration      uint64   `json:"durationSeconds"`
}

type repayRequest struct {
	Borrower string `json:"borrower"`
	Amount   string `json:"amount"`
}

type liquidateRequest struct {
	Liquidator string `json:"liquidator"`
}

type receivableResponse struct {
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
	MetadataURI      string `json:"metadataUri,omitempty"`
}

type loanResponse struct {
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

type healthResponse struct {
	LoanID          uint64 `json:"loanId"`
	Debt            string `json:"debt"`
	CollateralValue string `json:"collateralValue"`
	LTV             string `json:"ltvBps"`
	Liquidatable    bool   `json:"liquidatable"`
	Overdue         bool   `json:"overdue"`
}

type liquidationResponse struct {
	LoanID     uint64   `json:"loanId"`
	Liquidator string   `json:"liquidator"`
	Debt       string   `json:"debt"`
	Penalty    string   `json:"penalty"`
	Recovered  string   `json:"recovered"`
	Shortfall  string   `json:"shortfall"`
	Seized     []uint64 `json:"seized"`
}

type vaultResponse struct {
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

type positionResponse struct {
	Depositor        string `json:"depositor"`
	Shares           string `json:"shares"`
	Value            string `json:"value"`
	DepositTimestamp uint64 `json:"depositTimestamp"`
}

func toReceivableResponse(r *receivables.Receivable) receivableResponse {
	return receivableResponse{
		ID:               r.ID,
		Owner:            crypto.FromRaw(r.Owner).String(),
		OriginalCreditor: crypto.FromRaw(r.OriginalCreditor).String(),
		DebtorHash:       formatHash(r.DebtorHash),
		FaceValue:        amountString(r.FaceValue),
		Currency:         r.Currency,
		IssuanceDate:     r.IssuanceDate,
		MaturityDate:     r.MaturityDate,
		ProofHash:        formatHash(r.ProofHash),
		Status:           r.Status.String(),
		RiskScore:        r.RiskScore,
		MetadataURI:      r.MetadataURI,
	}
}

func toLoanResponse(l *lending.Loan) loanResponse {
	ids := l.ReceivableIDs
	if ids == nil {
		ids = []uint64{}
	}
	return loanResponse{
		ID:                 l.ID,
		Borrower:           crypto.FromRaw(l.Borrower).String(),
		ReceivableIDs:      ids,
		CollateralValue:    amountString(l.CollateralValue),
		Principal:          amountString(l.Principal),
		InterestRate:       l.InterestRate,
		AccruedInterest:    amountString(l.AccruedInterest),
		BorrowedAt:         l.BorrowedAt,
		LastInterestUpdate: l.LastInterestUpdate,
		DueDate:            l.DueDate,
		Status:             l.Status.String(),
	}
}

func toHealthResponse(h *lending.Health) healthResponse {
	return healthResponse{
		LoanID:          h.LoanID,
		Debt:            amountString(h.Debt),
		CollateralValue: amountString(h.CollateralValue),
		LTV:             amountString(h.LTV),
		Liquidatable:    h.Liquidatable,
		Overdue:         h.Overdue,
	}
}

func toLiquidationResponse(l *lending.Liquidation) liquidationResponse {
	seized := l.Seized
	if seized == nil {
		seized = []uint64{}
	}
	return liquidationResponse{
		LoanID:     l.LoanID,
		Liquidator: crypto.FromRaw(l.Liquidator).String(),
		Debt:       amountString(l.Debt),
		Penalty:    amountString(l.Penalty),
		Recovered:  amountString(l.Recovered),
		Shortfall:  amountString(l.Shortfall),
		Seized:     seized,
	}
}

func toVaultResponse(s engine.VaultSnapshot) vaultResponse {
	st := s.State
	if st == nil {
		st = &vault.State{}
	}
	return vaultResponse{
		BaseAsset:           st.BaseAsset,
		TotalDeposits:       amountString(st.TotalDeposits),
		TotalShares:         amountString(st.TotalShares),
		TotalBorrowed:       amountString(st.TotalBorrowed),
		TotalInterestEarned: amountString(st.TotalInterestEarned),
		ProtocolReserves:    amountString(st.ProtocolReserves),
		TotalAssets:         amountString(s.TotalAssets),
		AvailableLiquidity:  amountString(s.AvailableLiquidity),
		UtilizationBps:      s.UtilizationBps,
		ReserveFactorBps:    st.ReserveFactor,
		MaxUtilizationBps:   st.MaxUtilization,
		MinDeposit:          amountString(st.MinDeposit),
		Paused:              s.Paused,
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatHash(h [32]byte) string {
	return "0x" + hex.EncodeToString(h[:])
}

func parseAddress(value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("address required: %w", engine.ErrInvalidArgument)
	}
	raw, err := crypto.ParseAddress(trimmed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid address %q: %w", trimmed, engine.ErrInvalidArgument)
	}
	return raw, nil
}

func parseAmount(field, amount string) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, fmt.Errorf("%s required: %w", field, engine.ErrInvalidArgument)
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %w", field, engine.ErrInvalidArgument)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("%s must be positive: %w", field, engine.ErrInvalidArgument)
	}
	return value, nil
}

// parseHash accepts an optional 0x prefix. Empty input yields the zero hash.
func parseHash(field, value string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if trimmed == "" {
		return out, nil
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != len(out) {
		return out, fmt.Errorf("%s must be 32 hex encoded bytes: %w", field, engine.ErrInvalidArgument)
	}
	copy(out[:], decoded)
	return out, nil
}

func parseID(value string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q: %w", value, engine.ErrInvalidArgument)
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body required: %w", engine.ErrInvalidArgument)
		}
		return fmt.Errorf("decode request: %v: %w", err, engine.ErrInvalidArgument)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// TLSConfig describes the optional TLS material for the HTTP listener.
type TLSConfig struct {
	CertFile     string
	KeyFile      string
	ClientCAFile string
}

// ServerTLSConfig loads the certificate pair and, when provided, a client CA
// bundle that turns on mutual TLS. It returns nil when no certificate is
// configured.
func ServerTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	certPath := strings.TrimSpace(cfg.CertFile)
	keyPath := strings.TrimSpace(cfg.KeyFile)
	clientCAPath := strings.TrimSpace(cfg.ClientCAFile)
	if certPath == "" && keyPath == "" {
		if clientCAPath != "" {
			return nil, fmt.Errorf("client ca requires a server certificate and key")
		}
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load tls keypair: %w", err)
	}
	tlsCfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.NoClientCert,
	}
	if clientCAPath != "" {
		pem, err := os.ReadFile(clientCAPath)
		if err != nil {
			return nil, fmt.Errorf("read client ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("parse client ca: invalid pem data")
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsCfg, nil
}
