package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/ruleback/internal/rank"
)

func factorService(t *testing.T, status int, rows map[string]rank.CrossRow) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/factors", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("date"))
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemote_FactorTable(t *testing.T) {
	rows := map[string]rank.CrossRow{"AAA": {"turnover_rate": 4.5}}
	srv := factorService(t, http.StatusOK, rows)

	r := NewRemote([]string{srv.URL}, zerolog.Nop())
	got, err := r.FactorTable(context.Background(), time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestRemote_FallsBackToNextBase(t *testing.T) {
	rows := map[string]rank.CrossRow{"BBB": {"amount": 1e7}}
	down := factorService(t, http.StatusInternalServerError, nil)
	up := factorService(t, http.StatusOK, rows)

	r := NewRemote([]string{down.URL, up.URL}, zerolog.Nop())
	got, err := r.FactorTable(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestRemote_AllBasesFailing(t *testing.T) {
	down := factorService(t, http.StatusBadGateway, nil)
	r := NewRemote([]string{down.URL, down.URL}, zerolog.Nop())
	_, err := r.FactorTable(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "factor sources failed")
}
