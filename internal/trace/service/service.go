// Package service implements the stage transition service: it checks each
// submission against the batch's current stage and the action's field schema,
// appends accepted transitions to the ledger and keeps the batch registry in
// step with it.
package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/batch"
	"github.com/jmerrifield20/agriledger/internal/ledger"
	"github.com/jmerrifield20/agriledger/internal/trace/model"
)

const tracerName = "github.com/jmerrifield20/agriledger/internal/trace/service"

// Rejection reasons reported to Metrics.
const (
	RejectValidation = "validation"
	RejectOutOfOrder = "out_of_order"
	RejectExists     = "batch_exists"
	RejectInternal   = "internal"
)

// Metrics receives service events. *handler.PrometheusMetrics satisfies it.
type Metrics interface {
	BlockAppended(action ledger.Action)
	SubmissionRejected(reason string)
	LedgerValidated(status ledger.Status)
	LedgerHeight(blocks int)
}

type nopMetrics struct{}

func (nopMetrics) BlockAppended(ledger.Action)   {}
func (nopMetrics) SubmissionRejected(string)     {}
func (nopMetrics) LedgerValidated(ledger.Status) {}
func (nopMetrics) LedgerHeight(int)              {}

// Service records and reads batch journeys.
type Service struct {
	store    ledger.Store
	registry *batch.Registry
	metrics  Metrics
	tracer   trace.Tracer
	logger   *zap.Logger

	// mu serialises the check, append and register steps of a submission.
	// Reads never take it.
	mu sync.Mutex
}

// New creates a Service over store. Call Init before serving requests.
func New(store ledger.Store, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		registry: batch.NewRegistry(store),
		metrics:  nopMetrics{},
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
	}
}

// SetMetrics installs m. Passing nil restores the no-op recorder.
func (s *Service) SetMetrics(m Metrics) {
	if m == nil {
		m = nopMetrics{}
	}
	s.metrics = m
}

// Registry exposes the batch index.
func (s *Service) Registry() *batch.Registry { return s.registry }

// Init creates the genesis block on an empty ledger, rebuilds the batch
// registry from the stored blocks and validates the chain. A tampered ledger
// is logged and reported, not repaired.
func (s *Service) Init(ctx context.Context) (ledger.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.store.Len(ctx)
	if err != nil {
		return ledger.Report{}, fmt.Errorf("read ledger length: %w", err)
	}
	if n == 0 {
		if _, err := s.store.Genesis(ctx); err != nil && !errors.Is(err, ledger.ErrGenesisExists) {
			return ledger.Report{}, fmt.Errorf("create genesis block: %w", err)
		}
	}
	if err := s.registry.Rebuild(ctx); err != nil {
		return ledger.Report{}, fmt.Errorf("rebuild batch registry: %w", err)
	}

	report, err := s.validate(ctx)
	if err != nil {
		return ledger.Report{}, err
	}
	s.logger.Info("ledger loaded",
		zap.Int("blocks", report.Blocks),
		zap.Int("batches", s.registry.Len()),
		zap.String("status", string(report.Status)),
	)
	return report, nil
}

// CreateBatch opens a new batch with a creation action (SEED_CREATED or
// HARVEST_SOLD). A batchId entry in fields chooses the ID; otherwise a UUID
// is generated.
func (s *Service) CreateBatch(ctx context.Context, action ledger.Action, fields map[string]any) (*model.CreateBatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "trace.CreateBatch", trace.WithAttributes(
		attribute.String("action", string(action)),
	))
	defer span.End()

	batchID := uuid.NewString()
	if v, ok := fields[fieldBatchID]; ok && v != nil {
		id, ok := v.(string)
		if !ok {
			return nil, s.reject(span, "", action, invalid(fieldBatchID, "must be a string"))
		}
		batchID = id
	}
	if err := validBatchID(batchID); err != nil {
		return nil, s.reject(span, batchID, action, err)
	}
	span.SetAttributes(attribute.String("batch_id", batchID))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.registry.CurrentStage(batchID); exists {
		return nil, s.reject(span, batchID, action, fmt.Errorf("%w: %s", ErrBatchExists, batchID))
	}
	b, err := s.submitLocked(ctx, span, batchID, action, fields)
	if err != nil {
		return nil, err
	}
	return &model.CreateBatchResult{
		BatchID:         batchID,
		BlockIndex:      b.Index,
		Hash:            b.Hash,
		DigitalPassport: b.Data.DigitalPassport,
		PassportData:    hex.EncodeToString(ledger.PassportData(b.Data)),
	}, nil
}

// Submit records action for batchID. The action must be the legal next step
// for the batch's current stage and fields must satisfy the action's schema;
// otherwise nothing is written and an *OrderError or *ValidationError is
// returned.
func (s *Service) Submit(ctx context.Context, batchID string, action ledger.Action, fields map[string]any) (*model.SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "trace.Submit", trace.WithAttributes(
		attribute.String("batch_id", batchID),
		attribute.String("action", string(action)),
	))
	defer span.End()

	if err := validBatchID(batchID); err != nil {
		return nil, s.reject(span, batchID, action, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.submitLocked(ctx, span, batchID, action, fields)
	if err != nil {
		return nil, err
	}
	stage, _ := action.Stage()
	return &model.SubmitResult{BatchID: batchID, BlockIndex: b.Index, Hash: b.Hash, Stage: stage}, nil
}

// submitLocked runs the checks and the append. Callers hold s.mu.
func (s *Service) submitLocked(ctx context.Context, span trace.Span, batchID string, action ledger.Action, fields map[string]any) (*ledger.Block, error) {
	if !action.Valid() {
		return nil, s.reject(span, batchID, action, invalid("action", "unknown action "+string(action)))
	}
	current, exists := s.registry.CurrentStage(batchID)
	if err := checkTransition(batchID, current, exists, action); err != nil {
		return nil, s.reject(span, batchID, action, err)
	}
	p, err := buildPayload(batchID, action, fields)
	if err != nil {
		return nil, s.reject(span, batchID, action, err)
	}
	if !exists {
		p.DigitalPassport = ledger.DigitalPassport(p)
	}

	b, err := s.store.Append(ctx, p)
	if err != nil {
		return nil, s.reject(span, batchID, action, fmt.Errorf("append block: %w", err))
	}
	stage, _ := action.Stage()
	if err := s.registry.RegisterOrAppend(batchID, b.Index, stage); err != nil {
		// The block is durable; the index can be recovered with Rebuild.
		s.logger.Error("batch registry out of step with ledger",
			zap.String("batch_id", batchID), zap.Int("block_index", b.Index), zap.Error(err))
		return nil, s.reject(span, batchID, action, err)
	}

	s.metrics.BlockAppended(action)
	s.metrics.LedgerHeight(b.Index + 1)
	span.SetAttributes(attribute.Int("block_index", b.Index))
	s.logger.Info("stage recorded",
		zap.String("batch_id", batchID),
		zap.String("action", string(action)),
		zap.Int("block_index", b.Index),
		zap.String("hash", b.Hash),
	)
	return b, nil
}

// reject logs and counts a refused submission and returns err unchanged.
func (s *Service) reject(span trace.Span, batchID string, action ledger.Action, err error) error {
	reason := RejectInternal
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ledger.ErrInvalidPayload):
		reason = RejectValidation
	case errors.Is(err, ErrStageOutOfOrder):
		reason = RejectOutOfOrder
	case errors.Is(err, ErrBatchExists):
		reason = RejectExists
	}
	s.metrics.SubmissionRejected(reason)
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)

	fields := []zap.Field{
		zap.String("batch_id", batchID),
		zap.String("action", string(action)),
		zap.String("reason", reason),
		zap.Error(err),
	}
	if reason == RejectInternal {
		s.logger.Error("submission failed", fields...)
	} else {
		s.logger.Info("submission rejected", fields...)
	}
	return err
}

// Track returns the batch's blocks in order along with the integrity of the
// whole ledger.
func (s *Service) Track(ctx context.Context, batchID string) (*model.TrackResult, error) {
	ctx, span := s.tracer.Start(ctx, "trace.Track", trace.WithAttributes(
		attribute.String("batch_id", batchID),
	))
	defer span.End()

	history, err := s.registry.Thread(ctx, batchID)
	if errors.Is(err, batch.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, batchID)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	report, err := s.validate(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	res := &model.TrackResult{
		BatchID:         batchID,
		Stage:           stageOf(history[len(history)-1]),
		History:         history,
		LedgerIntegrity: report.Status,
	}
	if report.Tampered() {
		idx := report.FirstBadIndex
		res.FirstBadIndex = &idx
		res.Reason = report.Reason
	}
	return res, nil
}

func stageOf(b *ledger.Block) ledger.Stage {
	stage, _ := b.Data.Action.Stage()
	return stage
}

// ValidateLedger walks the whole chain and reports the earliest tampered block.
func (s *Service) ValidateLedger(ctx context.Context) (ledger.Report, error) {
	ctx, span := s.tracer.Start(ctx, "trace.ValidateLedger")
	defer span.End()
	report, err := s.validate(ctx)
	if err != nil {
		span.RecordError(err)
	}
	return report, err
}

func (s *Service) validate(ctx context.Context) (ledger.Report, error) {
	report, err := ledger.Validate(ctx, s.store)
	if err != nil {
		return ledger.Report{}, fmt.Errorf("validate ledger: %w", err)
	}
	s.metrics.LedgerValidated(report.Status)
	s.metrics.LedgerHeight(report.Blocks)
	if report.Tampered() {
		s.logger.Warn("ledger integrity violation",
			zap.Int("block_index", report.FirstBadIndex),
			zap.String("reason", report.Reason),
		)
	}
	return report, nil
}

var errFound = errors.New("found")

// Locate finds the block whose stored hash equals hash and reports whether
// the ledger as a whole still verifies.
func (s *Service) Locate(ctx context.Context, hash string) (*model.LocateResult, error) {
	ctx, span := s.tracer.Start(ctx, "trace.Locate")
	defer span.End()

	var found *ledger.Block
	err := s.store.Scan(ctx, 0, func(b *ledger.Block) error {
		if b.Hash == hash {
			found = b
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		span.RecordError(err)
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	if found == nil {
		return nil, fmt.Errorf("%w: hash %s", ledger.ErrNotFound, hash)
	}

	report, err := s.validate(ctx)
	if err != nil {
		return nil, err
	}
	return &model.LocateResult{Block: found, LedgerIntegrity: report.Status}, nil
}

// Batches lists every batch with its current stage, ordered by ID.
func (s *Service) Batches(_ context.Context) []batch.Summary {
	return s.registry.Batches()
}

// Block returns the block at index.
func (s *Service) Block(ctx context.Context, index int) (*ledger.Block, error) {
	return s.store.At(ctx, index)
}

// Overview returns the ledger height and root (tail) hash.
func (s *Service) Overview(ctx context.Context) (*model.Overview, error) {
	tail, err := s.store.Tail(ctx)
	if err != nil {
		return nil, err
	}
	return &model.Overview{Blocks: tail.Index + 1, Root: tail.Hash, Batches: s.registry.Len()}, nil
}

// Reconcile compares the batch registry to a fresh scan of the ledger and
// rebuilds it when they disagree. It returns the IDs that had drifted.
func (s *Service) Reconcile(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drift, err := s.registry.Diff(ctx)
	if err != nil {
		return nil, fmt.Errorf("diff batch registry: %w", err)
	}
	if len(drift) == 0 {
		return nil, nil
	}
	if err := s.registry.Rebuild(ctx); err != nil {
		return drift, fmt.Errorf("rebuild batch registry: %w", err)
	}
	s.logger.Warn("batch registry rebuilt", zap.Strings("batch_ids", drift))
	return drift, nil
}
