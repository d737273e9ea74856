package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/audit"
	"github.com/jmerrifield20/agriledger/internal/ledger"
	"github.com/jmerrifield20/agriledger/internal/trace/service"
)

type fakeTarget struct {
	mu      sync.Mutex
	reports []ledger.Report
	err     error
	drift   []string
	calls   int
}

func (f *fakeTarget) ValidateLedger(context.Context) (ledger.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return ledger.Report{}, f.err
	}
	r := f.reports[min(f.calls, len(f.reports)-1)]
	f.calls++
	return r, nil
}

func (f *fakeTarget) Reconcile(context.Context) ([]string, error) {
	return f.drift, nil
}

var (
	verified   = ledger.Report{Status: ledger.StatusVerified, FirstBadIndex: -1, Blocks: 3}
	tamperedAt = func(i int) ledger.Report {
		return ledger.Report{Status: ledger.StatusTampered, FirstBadIndex: i, Reason: "hash mismatch"}
	}
)

func TestCheckOnce_tamperHookFiresOnTransition(t *testing.T) {
	target := &fakeTarget{reports: []ledger.Report{verified, tamperedAt(2), tamperedAt(2), tamperedAt(1), verified}}
	a := audit.New(target, audit.Config{}, zap.NewNop())

	var fired []int
	a.SetTamperHook(func(_ context.Context, r ledger.Report) {
		fired = append(fired, r.FirstBadIndex)
	})

	if _, ok := a.Last(); ok {
		t.Fatal("Last must report no result before the first pass")
	}
	for i := 0; i < 5; i++ {
		a.CheckOnce(context.Background())
	}

	if len(fired) != 2 || fired[0] != 2 || fired[1] != 1 {
		t.Errorf("expected hook for index 2 then 1, got %v", fired)
	}
	last, ok := a.Last()
	if !ok || last.Report.Status != ledger.StatusVerified {
		t.Errorf("unexpected last result: %+v", last)
	}
}

func TestCheckOnce_validateError(t *testing.T) {
	target := &fakeTarget{err: errors.New("disk on fire")}
	a := audit.New(target, audit.Config{}, zap.NewNop())

	res := a.CheckOnce(context.Background())
	if res.Err == "" {
		t.Fatal("expected error in result")
	}
}

func TestCheckOnce_reconcilesRealService(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	svc := service.New(store, zap.NewNop())
	if _, err := svc.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateBatch(ctx, ledger.ActionSeedCreated, map[string]any{"batchId": "B1", "variety": "JS-9560"}); err != nil {
		t.Fatal(err)
	}
	// Written behind the service's back, so the registry does not know B2.
	if _, err := store.Append(ctx, ledger.Payload{Action: ledger.ActionSeedCreated, BatchID: "B2", Variety: "JS-335"}); err != nil {
		t.Fatal(err)
	}

	a := audit.New(svc, audit.Config{}, zap.NewNop())
	res := a.CheckOnce(ctx)
	if res.Report.Status != ledger.StatusVerified {
		t.Errorf("expected VERIFIED, got %s", res.Report.Status)
	}
	if len(res.Drifted) != 1 || res.Drifted[0] != "B2" {
		t.Errorf("expected drift on B2, got %v", res.Drifted)
	}
	if _, ok := svc.Registry().CurrentStage("B2"); !ok {
		t.Error("reconcile must rebuild the registry")
	}

	res = a.CheckOnce(ctx)
	if len(res.Drifted) != 0 {
		t.Errorf("expected no drift after rebuild, got %v", res.Drifted)
	}
}

func TestStart_stopsWithContext(t *testing.T) {
	target := &fakeTarget{reports: []ledger.Report{verified}}
	a := audit.New(target, audit.Config{Interval: 5 * time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := a.Last(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("auditor never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
