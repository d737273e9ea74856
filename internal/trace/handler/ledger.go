package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/trace/service"
)

// LedgerHandler exposes read-only HTTP endpoints for the provenance ledger.
type LedgerHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(svc *service.Service, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{svc: svc, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/blocks/:idx", h.GetBlock)
		l.GET("/hash/:hash", h.Locate)
	}
}

// Overview handles GET /ledger and returns the chain length and current root hash.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ov, err := h.svc.Overview(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "ledger overview", err)
		return
	}
	c.JSON(http.StatusOK, ov)
}

// Verify handles GET /ledger/verify by walking the full chain.
func (h *LedgerHandler) Verify(c *gin.Context) {
	report, err := h.svc.ValidateLedger(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "ledger verify", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetBlock handles GET /ledger/blocks/:idx and returns a single block.
func (h *LedgerHandler) GetBlock(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}

	b, err := h.svc.Block(c.Request.Context(), idx)
	if err != nil {
		writeError(c, h.logger, "get block", err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// Locate handles GET /ledger/hash/:hash and finds the block carrying a hash.
func (h *LedgerHandler) Locate(c *gin.Context) {
	res, err := h.svc.Locate(c.Request.Context(), c.Param("hash"))
	if err != nil {
		writeError(c, h.logger, "locate block", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
