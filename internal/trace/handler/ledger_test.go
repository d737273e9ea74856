package handler_test

import (
	"net/http"
	"testing"

	"github.com/jmerrifield20/agriledger/internal/ledger"
)

func TestLedgerOverview_200(t *testing.T) {
	router := setupRouter(t, ledger.NewMemoryStore())

	w, resp := do(t, router, http.MethodGet, "/api/v1/ledger", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if blocks := int(resp["blocks"].(float64)); blocks != 1 { // genesis
		t.Errorf("expected 1 block (genesis), got %d", blocks)
	}
	if root, _ := resp["root"].(string); len(root) != 64 {
		t.Errorf("expected 64-char root hash, got %q", root)
	}
}

func TestLedgerVerify_200(t *testing.T) {
	router := setupRouter(t, ledger.NewMemoryStore())

	w, resp := do(t, router, http.MethodGet, "/api/v1/ledger/verify", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["status"] != "VERIFIED" {
		t.Errorf("expected VERIFIED, got %v", resp["status"])
	}
	if idx := resp["firstBadIndex"].(float64); idx != -1 {
		t.Errorf("expected firstBadIndex -1, got %v", idx)
	}
}

func TestLedgerGetBlock_200_genesis(t *testing.T) {
	router := setupRouter(t, ledger.NewMemoryStore())

	w, resp := do(t, router, http.MethodGet, "/api/v1/ledger/blocks/0", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["previousHash"] != ledger.GenesisHash {
		t.Errorf("expected genesis previousHash sentinel, got %v", resp["previousHash"])
	}
}

func TestLedgerGetBlock_404(t *testing.T) {
	router := setupRouter(t, ledger.NewMemoryStore())

	w, _ := do(t, router, http.MethodGet, "/api/v1/ledger/blocks/999", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLedgerGetBlock_400_badIndex(t *testing.T) {
	router := setupRouter(t, ledger.NewMemoryStore())

	for _, idx := range []string{"abc", "-1"} {
		w, _ := do(t, router, http.MethodGet, "/api/v1/ledger/blocks/"+idx, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", idx, w.Code)
		}
	}
}

func TestLedgerLocate(t *testing.T) {
	router := setupRouter(t, ledger.NewMemoryStore())
	created := createB1(t, router)
	hash := created["hash"].(string)

	w, resp := do(t, router, http.MethodGet, "/api/v1/ledger/hash/"+hash, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["ledgerIntegrity"] != "VERIFIED" {
		t.Errorf("expected VERIFIED, got %v", resp["ledgerIntegrity"])
	}

	w, _ = do(t, router, http.MethodGet, "/api/v1/ledger/hash/unknown", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
