package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/audit"
	"github.com/jmerrifield20/agriledger/internal/ledger"
	"github.com/jmerrifield20/agriledger/internal/ledger/kvstore"
	"github.com/jmerrifield20/agriledger/internal/trace/handler"
	"github.com/jmerrifield20/agriledger/internal/trace/service"
)

func setupRouter(t *testing.T, store ledger.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := service.New(store, zap.NewNop())
	svc.SetMetrics(handler.PrometheusMetrics{})
	if _, err := svc.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return handler.NewRouter(ctx, svc, handler.RouterConfig{}, zap.NewNop())
}

func do(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func createB1(t *testing.T, router *gin.Engine) map[string]any {
	t.Helper()
	w, resp := do(t, router, http.MethodPost, "/api/v1/trace/batches", map[string]any{
		"action": "SEED_CREATED",
		"fields": map[string]any{"batchId": "B1", "variety": "JS-9560"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return resp
}

func TestCreateBatch_201(t *testing.T) {
	router := setupRouter(t, ledger.NewMemoryStore())
	resp := createB1(t, router)

	if resp["batchId"] != "B1" {
		t.Errorf("expected batchId B1, got %v", resp["batchId"])
	}
	if int(resp["blockIndex"].(float64)) != 1 {
		t.Errorf("expected blockIndex 1, got %v", resp["blockIndex"])
	}
	if p, _ := resp["digitalPassport"].(string); len(p) != 64 {
		t.Errorf("expected 64-char digital passport, got %q", p)
	}
}

func TestCreateBatch_400_missingAction(t *testing.T) {
	router := setupRouter(t, ledger.NewMemoryStore())
	w, _ := do(t, router, http.MethodPost, "/api/v1/trace/batches", map[string]any{"fields": map[string]any{}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateBatch_409_duplicate(t *testing.T) {
	router := setupRouter(t, ledger.NewMemoryStore())
	createB1(t, router)
	w, resp := do(t, router, http.MethodPost, "/api/v1/trace/batches", map[string]any{
		"action": "SEED_CREATED",
		"fields": map[string]any{"batchId": "B1", "variety": "JS-9560"},
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if resp["code"] != "batch_exists" {
		t.Errorf("expected code batch_exists, got %v", resp["code"])
	}
}

func TestSubmitStage_201(t *testing.T) {
	router := setupRouter(t, ledger.NewMemoryStore())
	created := createB1(t, router)

	w, resp := do(t, router, http.MethodPost, "/api/v1/trace/batches/B1/stages", map[string]any{
		"action": "HARVEST_SOLD",
		"fields": map[string]any{"farmerId": "F1", "quantity": 50},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if resp["stage"] != "HARVESTED" {
		t.Errorf("expected stage HARVESTED, got %v", resp["stage"])
	}

	_, block := do(t, router, http.MethodGet, "/api/v1/ledger/blocks/2", nil)
	if block["previousHash"] != created["hash"] {
		t.Errorf("block 2 previousHash %v, want %v", block["previousHash"], created["hash"])
	}
}

func TestSubmitStage_400_validation(t *testing.T) {
	router := setupRouter(t, ledger.NewMemoryStore())
	createB1(t, router)

	w, resp := do(t, router, http.MethodPost, "/api/v1/trace/batches/B1/stages", map[string]any{
		"action": "HARVEST_SOLD",
		"fields": map[string]any{"farmerId": "F1", "quantity": "fifty"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if resp["field"] != "quantity" {
		t.Errorf("expected field quantity, got %v", resp["field"])
	}
}

func TestSubmitStage_409_outOfOrder(t *testing.T) {
	store := ledger.NewMemoryStore()
	router := setupRouter(t, store)

	w, resp := do(t, router, http.MethodPost, "/api/v1/trace/batches/ghost/stages", map[string]any{
		"action": "PROCESSED",
		"fields": map[string]any{"processorId": "P1"},
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if _, ok := resp["stage"]; ok {
		t.Errorf("absent batch must not report a stage, got %v", resp["stage"])
	}
	if resp["code"] != "stage_out_of_order" {
		t.Errorf("expected code stage_out_of_order, got %v", resp["code"])
	}
	if n, _ := store.Len(context.Background()); n != 1 {
		t.Errorf("rejected submission changed ledger length to %d", n)
	}
}

func TestTrack_200(t *testing.T) {
	router := setupRouter(t, ledger.NewMemoryStore())
	createB1(t, router)

	w, resp := do(t, router, http.MethodGet, "/api/v1/trace/track/B1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["ledgerIntegrity"] != "VERIFIED" {
		t.Errorf("expected VERIFIED, got %v", resp["ledgerIntegrity"])
	}
	if h, _ := resp["history"].([]any); len(h) != 1 {
		t.Errorf("expected 1 history block, got %v", resp["history"])
	}
	if _, ok := resp["firstBadIndex"]; ok {
		t.Error("verified ledger must omit firstBadIndex")
	}
}

func TestTrack_404(t *testing.T) {
	router := setupRouter(t, ledger.NewMemoryStore())
	w, _ := do(t, router, http.MethodGet, "/api/v1/trace/track/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTrack_tamperedLedger(t *testing.T) {
	kv, err := kvstore.NewMemPebble()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	store, err := kvstore.Open(kv, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	router := setupRouter(t, store)
	createB1(t, router)

	raw, _, err := kv.Get(kvstore.BlockKey(1))
	if err != nil {
		t.Fatal(err)
	}
	var b ledger.Block
	json.Unmarshal(raw, &b)
	b.Data.Variety = "counterfeit"
	forged, _ := json.Marshal(b)
	if err := kv.Write(kvstore.Pair{Key: kvstore.BlockKey(1), Value: forged}); err != nil {
		t.Fatal(err)
	}

	w, resp := do(t, router, http.MethodGet, "/api/v1/trace/track/B1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["ledgerIntegrity"] != "TAMPERED" {
		t.Errorf("expected TAMPERED, got %v", resp["ledgerIntegrity"])
	}
	if idx, _ := resp["firstBadIndex"].(float64); idx != 1 {
		t.Errorf("expected firstBadIndex 1, got %v", resp["firstBadIndex"])
	}

	_, report := do(t, router, http.MethodGet, "/api/v1/ledger/verify", nil)
	if report["status"] != "TAMPERED" {
		t.Errorf("expected verify to report TAMPERED, got %v", report["status"])
	}
}

func TestListBatches_200(t *testing.T) {
	router := setupRouter(t, ledger.NewMemoryStore())
	createB1(t, router)

	w, resp := do(t, router, http.MethodGet, "/api/v1/trace/batches", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if int(resp["count"].(float64)) != 1 {
		t.Errorf("expected 1 batch, got %v", resp["count"])
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	router := setupRouter(t, ledger.NewMemoryStore())
	createB1(t, router)

	w, _ := do(t, router, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", w.Code)
	}

	w, _ = do(t, router, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`agriledger_blocks_appended_total{action="SEED_CREATED"}`)) {
		t.Error("expected appended-blocks counter in metrics output")
	}
}

func TestHealthz_includesAudit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := service.New(ledger.NewMemoryStore(), zap.NewNop())
	if _, err := svc.Init(ctx); err != nil {
		t.Fatal(err)
	}
	a := audit.New(svc, audit.Config{}, zap.NewNop())
	a.CheckOnce(ctx)
	router := handler.NewRouter(ctx, svc, handler.RouterConfig{Audit: a}, zap.NewNop())

	w, resp := do(t, router, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	res, ok := resp["audit"].(map[string]any)
	if !ok {
		t.Fatalf("expected audit section, got %v", resp)
	}
	if report, _ := res["report"].(map[string]any); report["status"] != "VERIFIED" {
		t.Errorf("expected VERIFIED audit, got %v", res["report"])
	}
}
