package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/pharmacy/internal/domain/models"
	"github.com/mamadbah2/pharmacy/internal/repository"
	"github.com/mamadbah2/pharmacy/internal/service/history"
)

const dateLayout = "2006-01-02"

// MedicineReader is the read side of the medicine repository.
type MedicineReader interface {
	FetchAll(ctx context.Context) ([]models.Medicine, error)
	FetchPageAt(ctx context.Context, token string, limit int) (repository.Page[models.Medicine], error)
	FetchByID(ctx context.Context, id string) (models.Medicine, error)
}

// AisleReader is the read side of the aisle repository.
type AisleReader interface {
	FetchAll(ctx context.Context) ([]models.Aisle, error)
	FetchByID(ctx context.Context, id string) (models.Aisle, error)
}

// HistoryReader is the read side of the history repository.
type HistoryReader interface {
	Query(ctx context.Context, f history.Filter) ([]models.HistoryEntry, error)
	FetchStockHistory(ctx context.Context, f history.Filter) ([]models.StockHistory, error)
}

// SummaryReporter builds stock summaries.
type SummaryReporter interface {
	StockSummary(ctx context.Context, start, end time.Time) (models.StockSummary, error)
}

// AlertScanner lists the medicines needing attention.
type AlertScanner interface {
	Scan(ctx context.Context) ([]models.StockAlert, error)
}

// InventoryHandler serves the read-only inventory inspection endpoints.
type InventoryHandler struct {
	medicines MedicineReader
	aisles    AisleReader
	history   HistoryReader
	reports   SummaryReporter
	alerts    AlertScanner
	logger    *zap.Logger
	now       func() time.Time
}

// NewInventoryHandler constructs the HTTP handler adapter. alerts may be nil.
func NewInventoryHandler(medicines MedicineReader, aisles AisleReader, hist HistoryReader, reports SummaryReporter, alerts AlertScanner, logger *zap.Logger) *InventoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryHandler{
		medicines: medicines,
		aisles:    aisles,
		history:   hist,
		reports:   reports,
		alerts:    alerts,
		logger:    logger,
		now:       time.Now,
	}
}

// ListMedicines returns every medicine, or one page when limit is set. Pages
// are addressed by the page_token returned with the previous page, so clients
// page independently of each other.
func (h *InventoryHandler) ListMedicines(c *gin.Context) {
	limitParam := c.Query("limit")
	if limitParam == "" {
		meds, err := h.medicines.FetchAll(c.Request.Context())
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": meds})
		return
	}

	limit, err := strconv.Atoi(limitParam)
	if err != nil {
		h.fail(c, models.NewValidationError("limit", "must be an integer"))
		return
	}
	page, err := h.medicines.FetchPageAt(c.Request.Context(), c.Query("page_token"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": page.Items, "has_more": page.HasMore, "next_page_token": page.NextToken})
}

// GetMedicine returns one medicine with its stock status.
func (h *InventoryHandler) GetMedicine(c *gin.Context) {
	med, err := h.medicines.FetchByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"medicine": med, "status": med.StockStatus()})
}

// ListAisles returns every aisle.
func (h *InventoryHandler) ListAisles(c *gin.Context) {
	aisles, err := h.aisles.FetchAll(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": aisles})
}

// GetAisle returns one aisle.
func (h *InventoryHandler) GetAisle(c *gin.Context) {
	aisle, err := h.aisles.FetchByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, aisle)
}

// ListHistory returns audit entries filtered by medicineId, start, end and limit.
func (h *InventoryHandler) ListHistory(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	entries, err := h.history.Query(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries})
}

// ListStockHistory returns the typed stock ledger for the same filters.
func (h *InventoryHandler) ListStockHistory(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	records, err := h.history.FetchStockHistory(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": records})
}

// StockSummary reports movements over [start, end], the last seven days by default.
func (h *InventoryHandler) StockSummary(c *gin.Context) {
	end := h.now()
	start := end.AddDate(0, 0, -7)

	if v := c.Query("start"); v != "" {
		t, err := parseTime("start", v)
		if err != nil {
			h.fail(c, err)
			return
		}
		start = t
	}
	if v := c.Query("end"); v != "" {
		t, err := parseTime("end", v)
		if err != nil {
			h.fail(c, err)
			return
		}
		end = t
	}

	summary, err := h.reports.StockSummary(c.Request.Context(), start, end)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ListAlerts returns the current stock alerts.
func (h *InventoryHandler) ListAlerts(c *gin.Context) {
	if h.alerts == nil {
		c.JSON(http.StatusOK, gin.H{"items": []models.StockAlert{}})
		return
	}
	alerts, err := h.alerts.Scan(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": alerts})
}

func (h *InventoryHandler) fail(c *gin.Context, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Errors})
	case models.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case models.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrUnavailable):
		h.logger.Error("storage unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseFilter(c *gin.Context) (history.Filter, error) {
	var f history.Filter
	if v := c.Query("medicineId"); v != "" {
		f.MedicineID = &v
	}
	if v := c.Query("start"); v != "" {
		t, err := parseTime("start", v)
		if err != nil {
			return f, err
		}
		f.Start = &t
	}
	if v := c.Query("end"); v != "" {
		t, err := parseTime("end", v)
		if err != nil {
			return f, err
		}
		f.End = &t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, models.NewValidationError("limit", "must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}

// parseTime accepts RFC 3339 timestamps and plain dates.
func parseTime(field, value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, models.NewValidationError(field, "must be RFC 3339 or YYYY-MM-DD")
	}
	return t, nil
}
