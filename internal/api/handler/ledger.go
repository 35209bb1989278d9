package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/vidledger/internal/api/middleware"
	"github.com/timmy/vidledger/internal/service"
)

// LedgerHandler serves the master database, journal and run history.
type LedgerHandler struct {
	ledger *service.LedgerService
}

// NewLedgerHandler creates a new ledger handler.
// Parameters:
//   - ledger: ledger service instance.
//
// Returns:
//   - *LedgerHandler: initialized handler.
func NewLedgerHandler(ledger *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// ListRecords handles GET /api/v1/records.
func (h *LedgerHandler) ListRecords(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	page, err := h.ledger.ListRecords(c.Request.Context(), offset, limit)
	if err != nil {
		h.fail(c, "Failed to list records", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetRecord handles GET /api/v1/records/:id, where id is a video id or
// the URL-escaped identifier.
func (h *LedgerHandler) GetRecord(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Record ID is required"})
		return
	}

	rec, err := h.ledger.GetRecord(c.Request.Context(), id)
	if errors.Is(err, service.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
		return
	}
	if err != nil {
		h.fail(c, "Failed to read record", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetProgress handles GET /api/v1/progress.
func (h *LedgerHandler) GetProgress(c *gin.Context) {
	doc, err := h.ledger.Progress(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to read progress journal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":    doc.RunID,
		"timestamp": doc.Timestamp,
		"succeeded": len(doc.Succeeded) + len(doc.LegacySkipped),
		"failed":    doc.Failed,
		"legacy":    doc.LegacyFailed,
	})
}

// GetStats handles GET /api/v1/stats.
func (h *LedgerHandler) GetStats(c *gin.Context) {
	stats, err := h.ledger.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to get stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListRuns handles GET /api/v1/runs.
func (h *LedgerHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	runs, err := h.ledger.Runs(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, "Failed to list runs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

func (h *LedgerHandler) fail(c *gin.Context, msg string, err error) {
	middleware.GetLogger(c).WithError(err).Error(msg)
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg + ": " + err.Error()})
}
