package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestConfirm_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/payments/confirm" {
			t.Fatalf("path = %s, want /v1/payments/confirm", r.URL.Path)
		}
		wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("sk_test:"))
		if got := r.Header.Get("Authorization"); got != wantAuth {
			t.Fatalf("authorization = %q, want %q", got, wantAuth)
		}

		var in ConfirmRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if in.PaymentKey != "pk_1" || in.OrderID != "ord-1" || in.Amount != 30000 {
			t.Fatalf("unexpected request: %+v", in)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Confirmation{PaymentKey: "pk_1", OrderID: "ord-1", Method: "카드", Status: "DONE"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "sk_test", nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := client.Confirm(ctx, ConfirmRequest{PaymentKey: "pk_1", OrderID: "ord-1", Amount: 30000})
	if err != nil {
		t.Fatalf("Confirm error: %v", err)
	}
	if res.Method != "카드" {
		t.Fatalf("method = %q, want 카드", res.Method)
	}
}

func TestConfirm_DefaultMethod(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"DONE"}`))
	}))
	defer ts.Close()

	res, err := NewClient(ts.URL, "sk", nil).Confirm(context.Background(), ConfirmRequest{PaymentKey: "p", OrderID: "o", Amount: 1})
	if err != nil {
		t.Fatalf("Confirm error: %v", err)
	}
	if res.Method != "card" {
		t.Fatalf("method = %q, want card", res.Method)
	}
}

func TestConfirm_GatewayError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"ALREADY_PROCESSED_PAYMENT","message":"이미 처리된 결제 입니다."}`))
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, "sk", nil).Confirm(context.Background(), ConfirmRequest{PaymentKey: "p", OrderID: "o", Amount: 1})

	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if gwErr.Code != "ALREADY_PROCESSED_PAYMENT" || gwErr.Message != "이미 처리된 결제 입니다." {
		t.Fatalf("unexpected gateway error: %+v", gwErr)
	}
	if gwErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", gwErr.StatusCode)
	}
}

func TestCancel_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/pk_9/cancel" {
			t.Fatalf("path = %s, want /v1/payments/pk_9/cancel", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["cancelReason"] != "changed mind" {
			t.Fatalf("cancelReason = %q", body["cancelReason"])
		}
		_, _ = w.Write([]byte(`{"status":"CANCELED"}`))
	}))
	defer ts.Close()

	if err := NewClient(ts.URL, "sk", nil).Cancel(context.Background(), "pk_9", "changed mind"); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
}

func TestCancel_ErrorWithoutMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`not json`))
	}))
	defer ts.Close()

	err := NewClient(ts.URL, "sk", nil).Cancel(context.Background(), "pk", "r")

	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if gwErr.Message != defaultCancelMessage || gwErr.Code != "" {
		t.Fatalf("unexpected gateway error: %+v", gwErr)
	}
}

func TestClient_NotConfigured(t *testing.T) {
	err := NewClient("", "", nil).Cancel(context.Background(), "pk", "r")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}
