package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Ledger integrity statuses.
const (
	StatusVerified = "VERIFIED"
	StatusTampered = "TAMPERED"
)

const codeBatchExists = "batch_exists"

var (
	// ErrInvalid matches a 400 response.
	ErrInvalid = errors.New("invalid request")
	// ErrOutOfOrder matches a 409 for an action that is not the batch's next stage.
	ErrOutOfOrder = errors.New("stage out of order")
	// ErrExists matches a 409 for a batch ID that is already in use.
	ErrExists = errors.New("batch already exists")
	// ErrNotFound matches a 404 response.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable matches a 503 response.
	ErrUnavailable = errors.New("service unavailable")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Field      string // set for field validation failures
	Stage      string // set for out-of-order submissions on an existing batch
	Code       string // set on 409 responses
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("HTTP %d: %s (field %s)", e.StatusCode, e.Message, e.Field)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is match an APIError against the status sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrInvalid:
		return e.StatusCode == http.StatusBadRequest
	case ErrOutOfOrder:
		return e.StatusCode == http.StatusConflict && e.Code != codeBatchExists
	case ErrExists:
		return e.StatusCode == http.StatusConflict && e.Code == codeBatchExists
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnavailable:
		return e.StatusCode == http.StatusServiceUnavailable
	}
	return false
}

// Fields carries the action-specific values of a submission.
type Fields map[string]any

// Block is one ledger entry.
type Block struct {
	Index        int            `json:"index"`
	Timestamp    time.Time      `json:"timestamp"`
	PreviousHash string         `json:"previousHash"`
	Data         map[string]any `json:"data"`
	Hash         string         `json:"hash"`
}

// Action returns the action recorded by the block.
func (b *Block) Action() string {
	s, _ := b.Data["action"].(string)
	return s
}

// CreateResult is returned by CreateBatch.
type CreateResult struct {
	BatchID         string `json:"batchId"`
	BlockIndex      int    `json:"blockIndex"`
	Hash            string `json:"hash"`
	DigitalPassport string `json:"digitalPassport"`
	PassportData    string `json:"passportData"`
}

// SubmitResult is returned by Submit.
type SubmitResult struct {
	BatchID    string `json:"batchId"`
	BlockIndex int    `json:"blockIndex"`
	Hash       string `json:"hash"`
	Stage      string `json:"stage"`
}

// TrackResult is a batch's history and the ledger's integrity.
type TrackResult struct {
	BatchID         string  `json:"batchId"`
	Stage           string  `json:"stage"`
	History         []Block `json:"history"`
	LedgerIntegrity string  `json:"ledgerIntegrity"`
	FirstBadIndex   *int    `json:"firstBadIndex,omitempty"`
	Reason          string  `json:"reason,omitempty"`
}

// Report is the result of a full-chain validation.
type Report struct {
	Status        string `json:"status"`
	FirstBadIndex int    `json:"firstBadIndex"`
	Reason        string `json:"reason,omitempty"`
	Blocks        int    `json:"blocks"`
}

// LocateResult is returned by Locate.
type LocateResult struct {
	Block           Block  `json:"block"`
	LedgerIntegrity string `json:"ledgerIntegrity"`
}

// BatchSummary is one entry of ListBatches.
type BatchSummary struct {
	BatchID string `json:"batchId"`
	Stage   string `json:"stage"`
	Blocks  int    `json:"blocks"`
}

// Overview summarises the ledger.
type Overview struct {
	Blocks  int    `json:"blocks"`
	Root    string `json:"root"`
	Batches int    `json:"batches"`
}

// Client talks to an agriledger server.
type Client struct {
	base       string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.httpClient.Timeout = d
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this in development against a self-signed certificate.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			Timeout: c.httpClient.Timeout,
		}
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

type stageRequest struct {
	Action string `json:"action"`
	Fields Fields `json:"fields,omitempty"`
}

// CreateBatch opens a batch with a creation action (SEED_CREATED or HARVEST_SOLD).
func (c *Client) CreateBatch(ctx context.Context, action string, fields Fields) (*CreateResult, error) {
	var res CreateResult
	if err := c.call(ctx, http.MethodPost, "/api/v1/trace/batches", stageRequest{action, fields}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Submit records the next stage of an existing batch.
func (c *Client) Submit(ctx context.Context, batchID, action string, fields Fields) (*SubmitResult, error) {
	var res SubmitResult
	path := "/api/v1/trace/batches/" + url.PathEscape(batchID) + "/stages"
	if err := c.call(ctx, http.MethodPost, path, stageRequest{action, fields}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Track returns the batch's full history.
func (c *Client) Track(ctx context.Context, batchID string) (*TrackResult, error) {
	var res TrackResult
	if err := c.call(ctx, http.MethodGet, "/api/v1/trace/track/"+url.PathEscape(batchID), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListBatches returns every batch with its current stage, ordered by ID.
func (c *Client) ListBatches(ctx context.Context) ([]BatchSummary, error) {
	var wrapper struct {
		Batches []BatchSummary `json:"batches"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/trace/batches", nil, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Batches, nil
}

// Overview returns the ledger height and root hash.
func (c *Client) Overview(ctx context.Context) (*Overview, error) {
	var res Overview
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Verify asks the server to validate the whole chain.
func (c *Client) Verify(ctx context.Context) (*Report, error) {
	var res Report
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger/verify", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Block returns the block at index.
func (c *Client) Block(ctx context.Context, index int) (*Block, error) {
	var res Block
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger/blocks/"+strconv.Itoa(index), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Locate returns the block whose hash is hash.
func (c *Client) Locate(ctx context.Context, hash string) (*LocateResult, error) {
	var res LocateResult
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger/hash/"+url.PathEscape(hash), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// call sends reqBody as JSON (when non-nil) and decodes a 2xx response into respBody.
func (c *Client) call(ctx context.Context, method, path string, reqBody, respBody any) error {
	var bodyReader io.Reader
	if reqBody != nil {
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, body)
	}
	if respBody == nil {
		return nil
	}
	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
		Field string `json:"field"`
		Stage string `json:"stage"`
		Code  string `json:"code"`
	}
	apiErr := &APIError{StatusCode: status}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Field = payload.Field
		apiErr.Stage = payload.Stage
		apiErr.Code = payload.Code
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
