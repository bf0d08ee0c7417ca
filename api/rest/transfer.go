package rest

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/philsgames/questtracker/audit"
	"github.com/philsgames/questtracker/game/transfer"
	mw "github.com/philsgames/questtracker/middleware"
	"go.uber.org/zap"
)

const maxImportBytes = 8 << 20

// TransferHandler handles bulk quest export and import.
type TransferHandler struct {
	svc    *transfer.Service
	audit  *audit.Service
	logger *zap.Logger
}

// NewTransferHandler creates a TransferHandler.
func NewTransferHandler(svc *transfer.Service, auditSvc *audit.Service, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{svc: svc, audit: auditSvc, logger: logger}
}

// Export returns every quest as a JSON array download.
// GET /api/quests/export   (GM only)
func (h *TransferHandler) Export(c *gin.Context) {
	data, err := h.svc.Export(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="quests.json"`)
	c.Data(http.StatusOK, "application/json", data)
}

// Import creates quests from an uploaded JSON array. A payload that is
// not a list is rejected before any quest is written.
// POST /api/quests/import   (GM only)
func (h *TransferHandler) Import(c *gin.Context) {
	start := time.Now()
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read failed"})
		return
	}

	count, err := h.svc.Import(c.Request.Context(), data)
	h.logAudit(c, count, err, start)
	if err != nil {
		if errors.Is(err, transfer.ErrNotAList) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be a JSON array of quests"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "import failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": count})
}

func (h *TransferHandler) logAudit(c *gin.Context, count int, err error, start time.Time) {
	if h.audit == nil {
		return
	}
	accountID := mw.GetAccountID(c)
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	h.audit.Log(audit.Entry{
		AccountID:  &accountID,
		Action:     "quest.import",
		Request:    map[string]interface{}{"imported": count},
		Error:      errMsg,
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	})
	h.logger.Info("quest import",
		zap.Int("imported", count),
		zap.Int64("account_id", accountID))
}
