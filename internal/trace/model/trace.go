// Package model holds the request and response types of the trace API.
package model

import "github.com/jmerrifield20/agriledger/internal/ledger"

// StageRequest is the body of a batch creation or stage submission.
type StageRequest struct {
	Action ledger.Action  `json:"action" binding:"required"`
	Fields map[string]any `json:"fields"`
}

// CreateBatchResult is returned when a new batch is opened.
type CreateBatchResult struct {
	BatchID         string `json:"batchId"`
	BlockIndex      int    `json:"blockIndex"`
	Hash            string `json:"hash"`
	DigitalPassport string `json:"digitalPassport"`
	// PassportData is the hex-encoded canonical creation payload. Its
	// SHA-256 is DigitalPassport, so a label can carry it for offline checks.
	PassportData string `json:"passportData"`
}

// SubmitResult is returned when a stage is recorded for an existing batch.
type SubmitResult struct {
	BatchID    string       `json:"batchId"`
	BlockIndex int          `json:"blockIndex"`
	Hash       string       `json:"hash"`
	Stage      ledger.Stage `json:"stage"`
}

// TrackResult is a batch's full history plus the integrity of the whole
// ledger at the time of the request. FirstBadIndex is set only when the
// ledger is tampered.
type TrackResult struct {
	BatchID         string          `json:"batchId"`
	Stage           ledger.Stage    `json:"stage"`
	History         []*ledger.Block `json:"history"`
	LedgerIntegrity ledger.Status   `json:"ledgerIntegrity"`
	FirstBadIndex   *int            `json:"firstBadIndex,omitempty"`
	Reason          string          `json:"reason,omitempty"`
}

// LocateResult pairs the block carrying a hash with the ledger's integrity.
type LocateResult struct {
	Block           *ledger.Block `json:"block"`
	LedgerIntegrity ledger.Status `json:"ledgerIntegrity"`
}

// Overview summarises the ledger.
type Overview struct {
	Blocks  int    `json:"blocks"`
	Root    string `json:"root"`
	Batches int    `json:"batches"`
}
