package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/pharmacy/internal/domain/models"
	"github.com/mamadbah2/pharmacy/internal/metrics"
	"github.com/mamadbah2/pharmacy/internal/repository"
	"github.com/mamadbah2/pharmacy/internal/server/handlers"
	"github.com/mamadbah2/pharmacy/internal/service/aisles"
	"github.com/mamadbah2/pharmacy/internal/service/history"
	"github.com/mamadbah2/pharmacy/internal/service/medicines"
	"github.com/mamadbah2/pharmacy/internal/service/reporting"
	"github.com/mamadbah2/pharmacy/internal/storage/memory"
)

type fixture struct {
	engine    *gin.Engine
	medicine  models.Medicine
	aisle     models.Aisle
	medicines *repository.MedicineRepository
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	ctx := context.Background()

	historySvc := history.NewService(memory.NewCollection[models.HistoryEntry](), opts.Metrics, nil)
	aisleStore := memory.NewCollection[models.Aisle]()
	medicineSvc := medicines.NewService(memory.NewCollection[models.Medicine](), aisleStore, historySvc, nil)
	aisleSvc := aisles.NewService(aisleStore, medicineSvc, historySvc, nil)

	medRepo := repository.NewMedicineRepository(medicineSvc, nil)
	aisleRepo := repository.NewAisleRepository(aisleSvc, nil)
	histRepo := repository.NewHistoryRepository(historySvc, nil)

	aisle, err := aisleRepo.Save(ctx, models.Aisle{Name: "Antalgiques"}, "user-1")
	require.NoError(t, err)
	med, err := medRepo.Save(ctx, models.Medicine{
		Name: "Paracetamol", Unit: "boîtes", AisleID: aisle.ID,
		CurrentQuantity: 30, WarningThreshold: 20, CriticalThreshold: 5,
	}, "user-1")
	require.NoError(t, err)
	_, err = medRepo.AdjustStock(ctx, med.ID, -18, "vente", "user-2")
	require.NoError(t, err)

	reports := reporting.NewService(medicineSvc, historySvc, nil, time.UTC, nil)
	h := handlers.NewInventoryHandler(medRepo, aisleRepo, histRepo, reports, nil, nil)

	return fixture{engine: New(h, opts, nil), medicine: med, aisle: aisle, medicines: medRepo}
}

func get(t *testing.T, engine *gin.Engine, target string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, Options{})
	var body map[string]string
	assert.Equal(t, http.StatusOK, get(t, f.engine, "/healthz", &body))
	assert.Equal(t, "ok", body["status"])

	down := newFixture(t, Options{Health: func(c *gin.Context) error { return errors.New("no primary") }})
	assert.Equal(t, http.StatusServiceUnavailable, get(t, down.engine, "/healthz", &body))
	assert.Equal(t, "no primary", body["error"])
}

func TestMedicineEndpoints(t *testing.T) {
	f := newFixture(t, Options{})

	var list struct {
		Items []models.Medicine `json:"items"`
	}
	require.Equal(t, http.StatusOK, get(t, f.engine, "/api/medicines", &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, 12, list.Items[0].CurrentQuantity)

	type pageBody struct {
		Items     []models.Medicine `json:"items"`
		HasMore   bool              `json:"has_more"`
		NextToken string            `json:"next_page_token"`
	}
	var page pageBody
	require.Equal(t, http.StatusOK, get(t, f.engine, "/api/medicines?limit=1", &page))
	assert.Len(t, page.Items, 1)
	assert.True(t, page.HasMore)
	require.Equal(t, "1", page.NextToken)

	// A second client starting over is not affected by the first one's position.
	var again pageBody
	require.Equal(t, http.StatusOK, get(t, f.engine, "/api/medicines?limit=1", &again))
	assert.Equal(t, page.Items, again.Items)

	var next pageBody
	require.Equal(t, http.StatusOK, get(t, f.engine, "/api/medicines?limit=1&page_token="+page.NextToken, &next))
	assert.Empty(t, next.Items)
	assert.False(t, next.HasMore)
	assert.Empty(t, next.NextToken)

	var one struct {
		Medicine models.Medicine    `json:"medicine"`
		Status   models.StockStatus `json:"status"`
	}
	require.Equal(t, http.StatusOK, get(t, f.engine, "/api/medicines/"+f.medicine.ID, &one))
	assert.Equal(t, "Paracetamol", one.Medicine.Name)
	assert.Equal(t, models.StockWarning, one.Status)

	var errBody map[string]any
	assert.Equal(t, http.StatusNotFound, get(t, f.engine, "/api/medicines/missing", &errBody))
	assert.Equal(t, http.StatusBadRequest, get(t, f.engine, "/api/medicines?limit=ten", &errBody))
	assert.Equal(t, http.StatusBadRequest, get(t, f.engine, "/api/medicines?limit=0", &errBody))
	assert.Equal(t, http.StatusBadRequest, get(t, f.engine, "/api/medicines?limit=1&page_token=abc", &errBody))
}

func TestAisleEndpoints(t *testing.T) {
	f := newFixture(t, Options{})

	var list struct {
		Items []models.Aisle `json:"items"`
	}
	require.Equal(t, http.StatusOK, get(t, f.engine, "/api/aisles", &list))
	require.Len(t, list.Items, 1)

	var aisle models.Aisle
	require.Equal(t, http.StatusOK, get(t, f.engine, "/api/aisles/"+f.aisle.ID, &aisle))
	assert.Equal(t, "Antalgiques", aisle.Name)
}

func TestHistoryEndpoints(t *testing.T) {
	f := newFixture(t, Options{})

	var entries struct {
		Items []models.HistoryEntry `json:"items"`
	}
	require.Equal(t, http.StatusOK, get(t, f.engine, "/api/history", &entries))
	assert.Len(t, entries.Items, 3)

	require.Equal(t, http.StatusOK, get(t, f.engine, "/api/history?medicineId="+f.medicine.ID+"&limit=1", &entries))
	require.Len(t, entries.Items, 1)
	assert.Equal(t, models.ActionStockWithdraw, entries.Items[0].Action)

	var ledger struct {
		Items []models.StockHistory `json:"items"`
	}
	require.Equal(t, http.StatusOK, get(t, f.engine, "/api/stock-history?medicineId="+f.medicine.ID, &ledger))
	require.Len(t, ledger.Items, 2)
	assert.Equal(t, -18, ledger.Items[0].Change)
	require.NotNil(t, ledger.Items[0].Reason)
	assert.Equal(t, "vente", *ledger.Items[0].Reason)
	assert.Equal(t, models.StockAddition, ledger.Items[1].Type)

	var errBody map[string]any
	assert.Equal(t, http.StatusBadRequest, get(t, f.engine, "/api/history?start=yesterday", &errBody))
	assert.Equal(t, http.StatusBadRequest, get(t, f.engine, "/api/history?limit=-1", &errBody))
}

func TestStockSummaryEndpoint(t *testing.T) {
	f := newFixture(t, Options{})

	var summary models.StockSummary
	require.Equal(t, http.StatusOK, get(t, f.engine, "/api/reports/stock-summary", &summary))
	assert.Equal(t, 30, summary.Additions)
	assert.Equal(t, 18, summary.Withdrawals)
	assert.Equal(t, 12, summary.NetChange)

	var errBody map[string]any
	assert.Equal(t, http.StatusBadRequest, get(t, f.engine, "/api/reports/stock-summary?start=2026-02-01&end=2026-01-01", &errBody))
}

func TestAlertsEndpointWithoutScanner(t *testing.T) {
	f := newFixture(t, Options{})

	var body struct {
		Items []models.StockAlert `json:"items"`
	}
	require.Equal(t, http.StatusOK, get(t, f.engine, "/api/alerts", &body))
	assert.Empty(t, body.Items)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	f := newFixture(t, Options{Metrics: m, MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})})
	get(t, f.engine, "/api/aisles", nil)

	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pharmacy_http_requests_total{method="GET",route="/api/aisles",status="200"} 1`)
	assert.Contains(t, rec.Body.String(), "pharmacy_audit_entries_total")
}
