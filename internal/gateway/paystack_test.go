package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func paystackServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Errorf("Authorization header: got %q", got)
		}
		body, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPaystack_InitiateTransfer_Accepted(t *testing.T) {
	var sent map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&sent)
		w.Write([]byte(`{"status":true,"message":"Transfer has been queued","data":{"transfer_code":"TRF_1","status":"pending"}}`))
	}))
	defer srv.Close()

	p := NewPaystack(srv.URL, "sk_test", "")
	res, err := p.InitiateTransfer(context.Background(), TransferRequest{RecipientCode: "RCP_1", Amount: 75000, Reference: "payout_x_1"})
	if err != nil {
		t.Fatalf("InitiateTransfer: %v", err)
	}
	if !res.Accepted || res.ProviderReference != "TRF_1" {
		t.Errorf("result: %+v", res)
	}
	if sent["reference"] != "payout_x_1" || sent["amount"] != float64(75000) || sent["source"] != "balance" {
		t.Errorf("request body: %v", sent)
	}
}

func TestPaystack_InitiateTransfer_Rejected(t *testing.T) {
	srv := paystackServer(t, map[string]string{
		"POST /transfer": `{"status":false,"message":"Invalid recipient code"}`,
	})
	p := NewPaystack(srv.URL, "sk_test", "NGN")
	res, err := p.InitiateTransfer(context.Background(), TransferRequest{RecipientCode: "RCP_bad", Amount: 1, Reference: "r"})
	if err != nil {
		t.Fatalf("business rejection must not be an error: %v", err)
	}
	if res.Accepted || res.Message != "Invalid recipient code" {
		t.Errorf("result: %+v", res)
	}
}

func TestPaystack_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()
	p := NewPaystack(srv.URL, "sk_test", "")
	if _, err := p.InitiateTransfer(context.Background(), TransferRequest{Reference: "r"}); err == nil {
		t.Fatal("expected error for undecodable response")
	}
}

func TestPaystack_VerifyTransaction(t *testing.T) {
	srv := paystackServer(t, map[string]string{
		"GET /transaction/verify/ref_1": `{"status":true,"message":"ok","data":{"status":"success","amount":100000,"metadata":{"booking_id":"abc","count":2}}}`,
	})
	p := NewPaystack(srv.URL, "sk_test", "")
	tx, err := p.VerifyTransaction(context.Background(), "ref_1")
	if err != nil {
		t.Fatalf("VerifyTransaction: %v", err)
	}
	if !tx.Success || tx.Amount != 100000 || tx.Metadata["booking_id"] != "abc" || tx.Metadata["count"] != "2" {
		t.Errorf("transaction: %+v", tx)
	}
}

func TestPaystack_BanksAndResolve(t *testing.T) {
	srv := paystackServer(t, map[string]string{
		"GET /bank":               `{"status":true,"message":"ok","data":[{"name":"Access Bank","code":"044"}]}`,
		"GET /bank/resolve":       `{"status":true,"message":"ok","data":{"account_number":"0001234567","account_name":"ADA OBI"}}`,
		"POST /transferrecipient": `{"status":true,"message":"ok","data":{"recipient_code":"RCP_9"}}`,
	})
	p := NewPaystack(srv.URL, "sk_test", "")
	banks, err := p.ListBanks(context.Background())
	if err != nil || len(banks) != 1 || banks[0].Code != "044" {
		t.Fatalf("ListBanks: %v %v", banks, err)
	}
	acct, err := p.ResolveAccount(context.Background(), "0001234567", "044")
	if err != nil || acct.AccountName != "ADA OBI" {
		t.Fatalf("ResolveAccount: %v %v", acct, err)
	}
	code, err := p.CreateRecipient(context.Background(), RecipientDetails{Name: "ADA OBI", AccountNumber: "0001234567", BankCode: "044"})
	if err != nil || code != "RCP_9" {
		t.Fatalf("CreateRecipient: %q %v", code, err)
	}
}

func TestPaystack_VerifyTransfer_Pending(t *testing.T) {
	srv := paystackServer(t, map[string]string{
		"GET /transfer/verify/payout_1": `{"status":true,"message":"ok","data":{"status":"processing"}}`,
	})
	p := NewPaystack(srv.URL, "sk_test", "")
	st, err := p.VerifyTransfer(context.Background(), "payout_1", "TRF_1")
	if err != nil || st.Status != TransferPending {
		t.Fatalf("VerifyTransfer: %+v %v", st, err)
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage("Invalid recipient code"); !strings.Contains(got, "Update your bank details") {
		t.Errorf("invalid recipient: %q", got)
	}
	if got := UserMessage("Your balance is not enough to fulfil this request"); !strings.Contains(got, "retry") {
		t.Errorf("balance: %q", got)
	}
	if got := UserMessage("something odd"); got != "Payout failed: something odd" {
		t.Errorf("unknown: %q", got)
	}
}
