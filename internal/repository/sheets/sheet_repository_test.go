package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

func newTestRepository(t *testing.T, handler http.HandlerFunc) *GoogleSheetRepository {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	service, err := sheetsapi.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication())
	require.NoError(t, err)

	return NewRepository(service, "sheet-1", nil)
}

func TestAppendRows(t *testing.T) {
	var got sheetsapi.ValueRange
	var path, inputOption string
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		inputOption = r.URL.Query().Get("valueInputOption")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	err := repo.AppendRows(context.Background(), "StockHistory!A:H", [][]interface{}{
		{"2026-01-02", "med-1", "addition", 10},
		{"2026-01-03", "med-1", "adjustment", -2},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(path, ":append"), path)
	assert.Contains(t, path, "sheet-1")
	assert.Equal(t, "USER_ENTERED", inputOption)
	require.Len(t, got.Values, 2)
	assert.Equal(t, "med-1", got.Values[0][1])
}

func TestAppendRowsNoop(t *testing.T) {
	called := false
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	require.NoError(t, repo.AppendRows(context.Background(), "StockHistory!A:H", nil))
	assert.False(t, called)
	assert.Error(t, repo.AppendRows(context.Background(), "", [][]interface{}{{"x"}}))
}

func TestReadRange(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"range":"StockHistory!A1:B2","values":[["a","b"],["c","d"]]}`))
	})

	rows, err := repo.ReadRange(context.Background(), "StockHistory!A:B")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "d", rows[1][1])
}

func TestReadRangeError(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
	})

	_, err := repo.ReadRange(context.Background(), "StockHistory!A:B")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read range")
}
