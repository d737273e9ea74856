package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/agriledger/internal/trace/model"
	"github.com/jmerrifield20/agriledger/internal/trace/service"
)

// TraceHandler exposes the batch journey endpoints.
type TraceHandler struct {
	svc    *service.Service
	logger *zap.Logger
}

// NewTraceHandler creates a new TraceHandler.
func NewTraceHandler(svc *service.Service, logger *zap.Logger) *TraceHandler {
	return &TraceHandler{svc: svc, logger: logger}
}

// Register mounts the trace routes on the given router group.
func (h *TraceHandler) Register(rg *gin.RouterGroup) {
	t := rg.Group("/trace")
	{
		t.POST("/batches", h.CreateBatch)
		t.GET("/batches", h.ListBatches)
		t.POST("/batches/:batchId/stages", h.SubmitStage)
		t.GET("/track/:batchId", h.Track)
	}
}

// CreateBatch handles POST /trace/batches.
func (h *TraceHandler) CreateBatch(c *gin.Context) {
	var req model.StageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.svc.CreateBatch(c.Request.Context(), req.Action, req.Fields)
	if err != nil {
		writeError(c, h.logger, "create batch", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// SubmitStage handles POST /trace/batches/:batchId/stages.
func (h *TraceHandler) SubmitStage(c *gin.Context) {
	var req model.StageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.svc.Submit(c.Request.Context(), c.Param("batchId"), req.Action, req.Fields)
	if err != nil {
		writeError(c, h.logger, "submit stage", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ListBatches handles GET /trace/batches.
func (h *TraceHandler) ListBatches(c *gin.Context) {
	batches := h.svc.Batches(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"batches": batches, "count": len(batches)})
}

// Track handles GET /trace/track/:batchId. A tampered ledger still returns
// 200; the result's ledgerIntegrity says so.
func (h *TraceHandler) Track(c *gin.Context) {
	res, err := h.svc.Track(c.Request.Context(), c.Param("batchId"))
	if err != nil {
		writeError(c, h.logger, "track batch", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
