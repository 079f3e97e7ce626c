package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"medvive-settlement/pkg/middleware"
	"medvive-settlement/services/approval"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestPayoutRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t, nil)
	ctx := context.Background()

	r := gin.New()
	r.Use(middleware.Actor(), middleware.Error())
	RegisterRoutes(r, f.svc)

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			_ = json.NewEncoder(&buf).Encode(body)
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.ActorHeader, "ops-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodPut, "/v1/providers/prov-1/fee", map[string]any{"consultation_fee": 10000})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(http.MethodPost, "/v1/payouts", map[string]any{"consultation_id": "c-1", "provider_id": "prov-1", "patient_id": "pat-1"})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Data Payout `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, int64(7000), created.Data.Amount)

	w = do(http.MethodPost, "/v1/payouts/"+created.Data.ID+"/approve", nil)
	require.Equal(t, http.StatusConflict, w.Code)

	_, err := f.wallet.Activate(ctx, "prov-1")
	require.NoError(t, err)

	w = do(http.MethodPost, "/v1/payouts/"+created.Data.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Data approval.Outcome `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.True(t, out.Data.Applied)

	w = do(http.MethodPost, "/v1/payouts/"+created.Data.ID+"/reject", map[string]string{"reason": "late"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, approval.ReasonAlreadyProcessed, out.Data.Reason)

	stored, err := f.svc.GetPayout(ctx, created.Data.ID)
	require.NoError(t, err)
	require.Equal(t, "ops-1", stored.ProcessedBy)

	w = do(http.MethodGet, "/v1/payouts/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
