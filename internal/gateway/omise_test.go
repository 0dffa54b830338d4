package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// omiseServer answers Omise API calls from routes and records each request
// body by method and path.
func omiseServer(t *testing.T, routes map[string]string, bodies map[string]map[string]any) *Omise {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, _, ok := r.BasicAuth(); !ok || user != "skey_test_1" {
			t.Errorf("basic auth user: got %q", user)
		}
		key := r.Method + " " + r.URL.Path
		if bodies != nil && r.Method == http.MethodPost {
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			bodies[key] = body
		}
		resp, ok := routes[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"object":"error","location":"","code":"not_found","message":"not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)

	o, err := NewOmise("pkey_test_1", "skey_test_1")
	if err != nil {
		t.Fatalf("NewOmise: %v", err)
	}
	o.client.Endpoints["https://api.omise.co"] = srv.URL
	return o
}

func TestOmise_CreateRecipient(t *testing.T) {
	bodies := map[string]map[string]any{}
	o := omiseServer(t, map[string]string{
		"POST /recipients": `{"object":"recipient","id":"recp_test_1","name":"Ada Obi","type":"individual"}`,
	}, bodies)

	code, err := o.CreateRecipient(context.Background(), RecipientDetails{Name: "Ada Obi", BankCode: "bbl", AccountNumber: "1234567890"})
	if err != nil {
		t.Fatalf("CreateRecipient: %v", err)
	}
	if code != "recp_test_1" {
		t.Errorf("recipient code: got %q", code)
	}
	sent := bodies["POST /recipients"]
	if sent["type"] != "individual" || sent["name"] != "Ada Obi" {
		t.Errorf("request body: %v", sent)
	}
	bank, _ := sent["bank_account"].(map[string]any)
	if bank["brand"] != "bbl" || bank["number"] != "1234567890" || bank["name"] != "Ada Obi" {
		t.Errorf("bank account: %v", sent["bank_account"])
	}
}

func TestOmise_InitiateTransfer(t *testing.T) {
	bodies := map[string]map[string]any{}
	o := omiseServer(t, map[string]string{
		"POST /transfers": `{"object":"transfer","id":"trsf_test_1","amount":75000,"paid":false,"sent":false}`,
	}, bodies)

	res, err := o.InitiateTransfer(context.Background(), TransferRequest{RecipientCode: "recp_test_1", Amount: 75000, Reference: "payout_x_1"})
	if err != nil {
		t.Fatalf("InitiateTransfer: %v", err)
	}
	if !res.Accepted || res.ProviderReference != "trsf_test_1" {
		t.Errorf("result: %+v", res)
	}
	sent := bodies["POST /transfers"]
	meta, _ := sent["metadata"].(map[string]any)
	if sent["recipient"] != "recp_test_1" || sent["amount"] != float64(75000) || meta["reference"] != "payout_x_1" {
		t.Errorf("request body: %v", sent)
	}
}

func TestOmise_InitiateTransfer_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"object":"error","code":"invalid_recipient","message":"recipient is not verified"}`))
	}))
	defer srv.Close()
	o, err := NewOmise("pkey_test_1", "skey_test_1")
	if err != nil {
		t.Fatal(err)
	}
	o.client.Endpoints["https://api.omise.co"] = srv.URL

	res, err := o.InitiateTransfer(context.Background(), TransferRequest{RecipientCode: "recp_bad", Amount: 1, Reference: "r"})
	if err != nil {
		t.Fatalf("business rejection must not be an error: %v", err)
	}
	if res.Accepted || res.Message != "recipient is not verified" {
		t.Errorf("result: %+v", res)
	}
}

func TestOmise_VerifyTransfer(t *testing.T) {
	o := omiseServer(t, map[string]string{
		"GET /transfers/trsf_paid":   `{"object":"transfer","id":"trsf_paid","paid":true}`,
		"GET /transfers/trsf_failed": `{"object":"transfer","id":"trsf_failed","failure_code":"insufficient_balance","failure_message":"insufficient balance"}`,
		"GET /transfers/trsf_sent":   `{"object":"transfer","id":"trsf_sent","sent":true}`,
	}, nil)
	ctx := context.Background()

	cases := map[string]TransferStatus{
		"trsf_paid":   {Status: TransferSuccess},
		"trsf_failed": {Status: TransferFailed, Reason: "insufficient balance"},
		"trsf_sent":   {Status: TransferPending},
		"":            {Status: TransferPending},
	}
	for id, want := range cases {
		got, err := o.VerifyTransfer(ctx, "payout_x_1", id)
		if err != nil {
			t.Fatalf("%q: %v", id, err)
		}
		if *got != want {
			t.Errorf("%q: got %+v, want %+v", id, *got, want)
		}
	}
}

func TestOmise_ListBanksUnsupported(t *testing.T) {
	o, err := NewOmise("pkey_test_1", "skey_test_1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.ListBanks(context.Background()); err != ErrUnsupported {
		t.Errorf("ListBanks: got %v", err)
	}
}
