package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jara-commerce/api/internal/domain"
)

const maxFonepayResponseBytes = 1 << 20

// FonepayConfig configures the wallet gateway.
type FonepayConfig struct {
	MerchantCode string
	SecretKey    string
	RequestURL   string
	VerifyURL    string
	ReturnURL    string
	Remark       string
	HTTPClient   *http.Client
	Clock        func() time.Time
	Logger       GatewayLogger
}

// FonepayGateway settles wallet payments through Fonepay's merchant request and verify endpoints.
type FonepayGateway struct {
	cfg    FonepayConfig
	client *http.Client
	clock  func() time.Time
	logger GatewayLogger
}

var _ Gateway = (*FonepayGateway)(nil)

// NewFonepayGateway constructs the wallet gateway.
func NewFonepayGateway(cfg FonepayConfig) (*FonepayGateway, error) {
	switch {
	case strings.TrimSpace(cfg.MerchantCode) == "":
		return nil, errors.New("fonepay: merchant code is required")
	case strings.TrimSpace(cfg.SecretKey) == "":
		return nil, errors.New("fonepay: secret key is required")
	case strings.TrimSpace(cfg.RequestURL) == "":
		return nil, errors.New("fonepay: request url is required")
	case strings.TrimSpace(cfg.VerifyURL) == "":
		return nil, errors.New("fonepay: verify url is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &FonepayGateway{cfg: cfg, client: client, clock: clock, logger: logger}, nil
}

func (g *FonepayGateway) Method() domain.PaymentMethod { return domain.PaymentMethodWallet }

// Initiate posts the signed merchant request and returns Fonepay's response body verbatim.
func (g *FonepayGateway) Initiate(ctx context.Context, req InitiateRequest) (Handle, error) {
	if req.Amount <= 0 {
		return Handle{}, fmt.Errorf("fonepay: amount must be positive, got %d", req.Amount)
	}
	now := g.clock().UTC()
	attempt := strings.TrimSpace(req.PaymentID)
	if attempt == "" {
		attempt = ulid.Make().String()
	}
	prn := "JARA-" + attempt
	params := []fonepayField{
		{"PID", g.cfg.MerchantCode},
		{"MD", "P"},
		{"PRN", prn},
		{"AMT", formatMajor(req.Amount)},
		{"CRN", req.OrderID},
		{"DT", now.Format("01/02/2006")},
		{"R1", g.cfg.Remark},
		{"R2", req.Email},
		{"RU", g.cfg.ReturnURL},
	}
	payload := fonepayPayload(params)
	payload["DV"] = g.sign(params)

	body, err := g.post(ctx, g.cfg.RequestURL, payload)
	if err != nil {
		return Handle{}, fmt.Errorf("fonepay: request: %w", err)
	}
	g.logger(ctx, "payments.fonepay.request.sent", map[string]any{
		"prn":     prn,
		"orderId": req.OrderID,
	})
	return Handle{Reference: prn, Raw: json.RawMessage(body)}, nil
}

// Verify checks that the callback belongs to the attempt being verified, then forwards it to the
// verification endpoint and trusts its success flag. A callback for another reference or amount
// is reported as not settled without contacting Fonepay.
func (g *FonepayGateway) Verify(ctx context.Context, req VerifyRequest) (Verification, error) {
	if req.Amount <= 0 {
		return Verification{}, fmt.Errorf("fonepay: amount must be positive, got %d", req.Amount)
	}
	cb := req.Callback
	reference := strings.TrimSpace(req.Reference)
	prn := strings.TrimSpace(cb["PRN"])
	switch {
	case prn == "":
		prn = reference
	case reference != "" && prn != reference:
		g.logger(ctx, "payments.fonepay.verify.mismatch", map[string]any{"orderId": req.OrderID, "field": "PRN"})
		return Verification{Reason: "callback reference does not match payment"}, nil
	}
	if prn == "" || strings.TrimSpace(cb["BID"]) == "" {
		return Verification{}, errors.New("fonepay: PRN and BID are required")
	}
	if raw := strings.TrimSpace(cb["AMT"]); raw != "" {
		paid, err := parseMajor(raw)
		if err != nil || paid != req.Amount {
			g.logger(ctx, "payments.fonepay.verify.mismatch", map[string]any{"orderId": req.OrderID, "field": "AMT"})
			return Verification{Reason: "callback amount does not match order total"}, nil
		}
	}
	params := []fonepayField{
		{"PID", g.cfg.MerchantCode},
		{"AMT", formatMajor(req.Amount)},
		{"PRN", prn},
		{"BID", cb["BID"]},
		{"UID", cb["UID"]},
	}
	payload := fonepayPayload(params)
	payload["MD"] = "V"
	payload["DV"] = g.sign(params)

	body, err := g.post(ctx, g.cfg.VerifyURL, payload)
	if err != nil {
		return Verification{}, fmt.Errorf("fonepay: verify: %w", err)
	}
	settled, err := parseFonepaySuccess(body)
	if err != nil {
		return Verification{}, fmt.Errorf("fonepay: verify: %w", err)
	}
	if !settled {
		return Verification{TransactionID: cb["UID"], Reason: "gateway reported failure"}, nil
	}
	return Verification{Settled: true, TransactionID: cb["UID"]}, nil
}

type fonepayField struct {
	key   string
	value string
}

func fonepayPayload(fields []fonepayField) map[string]string {
	out := make(map[string]string, len(fields)+2)
	for _, f := range fields {
		out[f.key] = f.value
	}
	return out
}

// sign computes the data validation value: HMAC-SHA512 over the comma-joined values, hex upper.
func (g *FonepayGateway) sign(fields []fonepayField) string {
	values := make([]string, 0, len(fields))
	for _, f := range fields {
		values = append(values, f.value)
	}
	mac := hmac.New(sha512.New, []byte(g.cfg.SecretKey))
	mac.Write([]byte(strings.Join(values, ",")))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

func (g *FonepayGateway) post(ctx context.Context, url string, payload map[string]string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFonepayResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

func parseFonepaySuccess(body []byte) (bool, error) {
	trimmed := bytes.TrimSpace(body)
	var flag bool
	if err := json.Unmarshal(trimmed, &flag); err == nil {
		return flag, nil
	}
	var obj struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil || obj.Success == nil {
		return false, errors.New("malformed verification response")
	}
	return *obj.Success, nil
}

// formatMajor renders minor units as a two-decimal major amount, e.g. 236000 → "2360.00".
func formatMajor(minor int64) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// parseMajor reads a major amount with at most two decimals back into minor units.
func parseMajor(value string) (int64, error) {
	whole, frac, _ := strings.Cut(value, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has more than two decimals", value)
	}
	frac += strings.Repeat("0", 2-len(frac))
	units, err := strconv.ParseUint(whole, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", value, err)
	}
	cents, err := strconv.ParseUint(frac, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", value, err)
	}
	return int64(units)*100 + int64(cents), nil
}
