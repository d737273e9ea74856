package ledger

import (
	"context"
	"errors"
)

// Status is the outcome of a ledger validation.
type Status string

const (
	StatusVerified Status = "VERIFIED"
	StatusTampered Status = "TAMPERED"
)

// Report is the result of Validate. FirstBadIndex is -1 for a verified ledger.
type Report struct {
	Status        Status `json:"status"`
	FirstBadIndex int    `json:"firstBadIndex"`
	Reason        string `json:"reason,omitempty"`
	Blocks        int    `json:"blocks"`
}

// Tampered reports whether the ledger failed validation.
func (r Report) Tampered() bool { return r.Status == StatusTampered }

// Err converts a tampered report into an *IntegrityError, and a verified one into nil.
func (r Report) Err() error {
	if !r.Tampered() {
		return nil
	}
	return &IntegrityError{Index: r.FirstBadIndex, Reason: r.Reason}
}

var errStopScan = errors.New("stop scan")

// Validate walks the chain from genesis to tail, keeping only the previous
// block in memory. For each block it checks, in order: the index is its
// position, PreviousHash links to the predecessor (GenesisHash for block 0),
// the stored Hash equals the recomputation, and the timestamp does not go
// backwards. Only the earliest failing index is reported.
func Validate(ctx context.Context, s Scanner) (Report, error) {
	var (
		prev   *Block
		report = Report{Status: StatusVerified, FirstBadIndex: -1}
	)

	err := s.Scan(ctx, 0, func(b *Block) error {
		if reason := checkBlock(prev, b, report.Blocks); reason != "" {
			report.Status = StatusTampered
			report.FirstBadIndex = report.Blocks
			report.Reason = reason
			return errStopScan
		}
		prev = b
		report.Blocks++
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return Report{}, err
	}
	if report.Blocks == 0 && !report.Tampered() {
		return Report{}, ErrEmptyLedger
	}
	return report, nil
}

// Verify is Validate for callers that only need an error. A tampered ledger
// yields an *IntegrityError.
func Verify(ctx context.Context, s Scanner) error {
	report, err := Validate(ctx, s)
	if err != nil {
		return err
	}
	return report.Err()
}

func checkBlock(prev, b *Block, position int) string {
	if b.Index != position {
		return "index out of sequence"
	}
	if prev == nil {
		if b.PreviousHash != GenesisHash {
			return "genesis previous hash is not the sentinel"
		}
		if b.Data.Action != ActionGenesis {
			return "first block is not a genesis block"
		}
	} else if b.PreviousHash != prev.Hash {
		return "previous hash does not match predecessor"
	}
	if b.Hash != HashBlock(b) {
		return "stored hash does not match recomputed hash"
	}
	if prev != nil && b.Timestamp.Before(prev.Timestamp) {
		return "timestamp earlier than predecessor"
	}
	return ""
}
