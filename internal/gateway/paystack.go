package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const DefaultPaystackURL = "https://api.paystack.co"

// Paystack talks to the Paystack REST API.
type Paystack struct {
	baseURL  string
	secret   string
	currency string
	http     *http.Client
}

func NewPaystack(baseURL, secretKey, currency string) *Paystack {
	if baseURL == "" {
		baseURL = DefaultPaystackURL
	}
	if currency == "" {
		currency = "NGN"
	}
	return &Paystack{
		baseURL:  baseURL,
		secret:   secretKey,
		currency: currency,
		http:     &http.Client{Timeout: 20 * time.Second},
	}
}

var _ Gateway = (*Paystack)(nil)

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// rejection is a well-formed response with status=false.
type rejection struct{ msg string }

func (r *rejection) Error() string { return r.msg }

func (p *Paystack) do(ctx context.Context, method, path string, body, out any) error {
	var rd *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.secret)
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("paystack %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	var env paystackEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("paystack %s %s: status %d: decode: %w", method, path, resp.StatusCode, err)
	}
	if !env.Status {
		return &rejection{msg: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (p *Paystack) ListBanks(ctx context.Context) ([]Bank, error) {
	var data []struct {
		Name string `json:"name"`
		Code string `json:"code"`
	}
	if err := p.do(ctx, http.MethodGet, "/bank?currency="+url.QueryEscape(p.currency), nil, &data); err != nil {
		return nil, err
	}
	banks := make([]Bank, 0, len(data))
	for _, b := range data {
		banks = append(banks, Bank{Name: b.Name, Code: b.Code})
	}
	return banks, nil
}

func (p *Paystack) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error) {
	q := url.Values{"account_number": {accountNumber}, "bank_code": {bankCode}}
	var data ResolvedAccount
	if err := p.do(ctx, http.MethodGet, "/bank/resolve?"+q.Encode(), nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (p *Paystack) CreateRecipient(ctx context.Context, d RecipientDetails) (string, error) {
	currency := d.Currency
	if currency == "" {
		currency = p.currency
	}
	body := map[string]string{
		"type":           "nuban",
		"name":           d.Name,
		"account_number": d.AccountNumber,
		"bank_code":      d.BankCode,
		"currency":       currency,
	}
	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := p.do(ctx, http.MethodPost, "/transferrecipient", body, &data); err != nil {
		return "", err
	}
	return data.RecipientCode, nil
}

func (p *Paystack) InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	body := map[string]any{
		"source":    "balance",
		"amount":    req.Amount,
		"recipient": req.RecipientCode,
		"reference": req.Reference,
		"reason":    req.Reason,
	}
	var data struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
	}
	err := p.do(ctx, http.MethodPost, "/transfer", body, &data)
	var rej *rejection
	if errors.As(err, &rej) {
		return &TransferResult{Message: rej.msg}, nil
	}
	if err != nil {
		return nil, err
	}
	switch data.Status {
	case "failed", "reversed":
		return &TransferResult{ProviderReference: data.TransferCode, Message: "transfer " + data.Status}, nil
	case "otp":
		return &TransferResult{ProviderReference: data.TransferCode, Message: "transfer requires otp"}, nil
	}
	return &TransferResult{Accepted: true, ProviderReference: data.TransferCode}, nil
}

func (p *Paystack) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	var data struct {
		Status   string         `json:"status"`
		Amount   int64          `json:"amount"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := p.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &data); err != nil {
		return nil, err
	}
	return &Transaction{
		Success:  data.Status == "success",
		Amount:   data.Amount,
		Metadata: flattenMetadata(data.Metadata),
	}, nil
}

func (p *Paystack) VerifyTransfer(ctx context.Context, reference, _ string) (*TransferStatus, error) {
	var data struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := p.do(ctx, http.MethodGet, "/transfer/verify/"+url.PathEscape(reference), nil, &data); err != nil {
		return nil, err
	}
	switch data.Status {
	case TransferSuccess, TransferFailed, TransferReversed:
		return &TransferStatus{Status: data.Status, Reason: data.Reason}, nil
	}
	return &TransferStatus{Status: TransferPending}, nil
}

// flattenMetadata keeps scalar metadata values as strings.
func flattenMetadata(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		}
	}
	return out
}
