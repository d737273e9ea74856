package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/ledger"
	"github.com/jmerrifield20/agriledger/internal/trace/service"
)

// Conflict codes distinguish the two 409 causes.
const (
	codeOutOfOrder  = "stage_out_of_order"
	codeBatchExists = "batch_exists"
)

// writeError maps a service or ledger error to its HTTP status and writes
// {"error": ...}. Validation errors also carry the offending field; order
// errors carry the batch's current stage and the accepted actions.
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	var (
		ve *service.ValidationError
		oe *service.OrderError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "field": ve.Field})
	case errors.Is(err, ledger.ErrInvalidPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &oe):
		body := gin.H{"error": oe.Error(), "code": codeOutOfOrder, "expected": oe.Expected}
		if oe.Current != "" {
			body["stage"] = oe.Current
		}
		c.JSON(http.StatusConflict, body)
	case errors.Is(err, service.ErrBatchExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": codeBatchExists})
	case errors.Is(err, service.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrEmptyLedger):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger has no genesis block"})
	default:
		logger.Error(op, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
