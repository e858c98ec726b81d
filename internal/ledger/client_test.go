package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestClientPost(t *testing.T) {
	var got PostRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ledger/postings" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"transaction_ref": "tx-42"})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "token-1")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ref, err := client.Post(context.Background(), PostRequest{
		SourceID:       "line-1",
		MemberID:       "m-100",
		BranchID:       "branch-01",
		AccountingDate: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Lines: []PostLine{
			{Category: CategoryCapital, Amount: decimal.NewFromInt(60000)},
			{Category: CategoryInterest, Amount: decimal.NewFromInt(10000)},
		},
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if ref != "tx-42" {
		t.Fatalf("expected tx-42, got %s", ref)
	}
	if got.SourceID != "line-1" || len(got.Lines) != 2 {
		t.Fatalf("unexpected request payload: %+v", got)
	}
}

func TestClientPostDayClosed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Post(context.Background(), PostRequest{
		SourceID: "line-1",
		BranchID: "branch-01",
		Lines:    []PostLine{{Category: CategorySavings, Amount: decimal.NewFromInt(100)}},
	})
	if !errors.Is(err, ErrAccountingDayClosed) {
		t.Fatalf("expected ErrAccountingDayClosed, got %v", err)
	}
}

func TestClientIsOpen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("date") != "2026-03-31" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"open": true})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	open, err := client.IsOpen(context.Background(), "branch-01", time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("is open: %v", err)
	}
	if !open {
		t.Fatalf("expected open day")
	}
}
