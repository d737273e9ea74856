// Package audit periodically re-validates the ledger and reconciles the
// batch registry against it.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/ledger"
)

// Config holds audit configuration.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Target is what the auditor checks. *service.Service satisfies it.
type Target interface {
	ValidateLedger(ctx context.Context) (ledger.Report, error)
	Reconcile(ctx context.Context) ([]string, error)
}

// TamperFunc is called once each time the ledger goes from verified (or
// unchecked) to tampered, or the first bad index moves.
type TamperFunc func(ctx context.Context, report ledger.Report)

// Result is the outcome of one audit pass.
type Result struct {
	Report    ledger.Report `json:"report"`
	Drifted   []string      `json:"drifted,omitempty"`
	CheckedAt time.Time     `json:"checkedAt"`
	Err       string        `json:"error,omitempty"`
}

// Auditor runs periodic ledger audits.
type Auditor struct {
	target   Target
	cfg      Config
	onTamper TamperFunc
	logger   *zap.Logger

	mu      sync.RWMutex
	last    Result
	checked bool
}

// New creates a new Auditor.
func New(target Target, cfg Config, logger *zap.Logger) *Auditor {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}
	return &Auditor{target: target, cfg: cfg, logger: logger}
}

// SetTamperHook configures the tamper callback.
func (a *Auditor) SetTamperHook(fn TamperFunc) {
	a.onTamper = fn
}

// Start runs the audit loop until ctx is done.
func (a *Auditor) Start(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
			a.CheckOnce(checkCtx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

// CheckOnce validates the chain, reconciles the registry and records the result.
func (a *Auditor) CheckOnce(ctx context.Context) Result {
	res := Result{CheckedAt: time.Now().UTC()}

	report, err := a.target.ValidateLedger(ctx)
	if err != nil {
		a.logger.Error("audit: validate ledger", zap.Error(err))
		res.Err = err.Error()
		a.store(res)
		return res
	}
	res.Report = report

	drift, err := a.target.Reconcile(ctx)
	if err != nil {
		a.logger.Error("audit: reconcile registry", zap.Error(err))
		res.Err = err.Error()
	}
	res.Drifted = drift

	prev, hadPrev := a.Last()
	switch {
	case report.Tampered() && (!hadPrev || !prev.Report.Tampered() || prev.Report.FirstBadIndex != report.FirstBadIndex):
		a.logger.Warn("audit: ledger tampered",
			zap.Int("block_index", report.FirstBadIndex),
			zap.String("reason", report.Reason),
		)
		if a.onTamper != nil {
			a.onTamper(ctx, report)
		}
	case !report.Tampered() && hadPrev && prev.Report.Tampered():
		a.logger.Info("audit: ledger verifies again", zap.Int("blocks", report.Blocks))
	}

	a.store(res)
	return res
}

func (a *Auditor) store(res Result) {
	a.mu.Lock()
	a.last = res
	a.checked = true
	a.mu.Unlock()
}

// Last returns the most recent result; ok is false before the first pass.
func (a *Auditor) Last() (res Result, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last, a.checked
}
