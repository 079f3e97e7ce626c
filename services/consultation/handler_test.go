package consultation

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"medvive-settlement/pkg/middleware"
	"medvive-settlement/services/gateway"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestTransactionRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)

	r := gin.New()
	r.Use(middleware.Error())
	RegisterRoutes(r, f.svc)

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			_ = json.NewEncoder(&buf).Encode(body)
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodPost, "/v1/transactions", map[string]any{"consultation_id": "c-1"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	f.gateway.EXPECT().CreateVirtualAccount(gomock.Any(), gomock.Any()).
		Return(&gateway.VirtualAccount{TransactionID: "gw-1"}, nil)
	w = do(http.MethodPost, "/v1/transactions", request())
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Data Transaction `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, StatusPending, created.Data.Status)

	w = do(http.MethodPost, "/v1/transactions", request())
	require.Equal(t, http.StatusConflict, w.Code)

	w = do(http.MethodPost, "/v1/transactions/"+created.Data.ID+"/reminder", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{"sent":true}}`, w.Body.String())

	f.gateway.EXPECT().GetTransactionStatus(gomock.Any(), "gw-1").
		Return(&gateway.TransactionStatus{Status: "COMPLETED"}, nil)
	w = do(http.MethodPost, "/v1/transactions/"+created.Data.ID+"/confirm", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(http.MethodPost, "/v1/transactions/"+created.Data.ID+"/reminder", nil)
	require.JSONEq(t, `{"data":{"sent":false}}`, w.Body.String())

	w = do(http.MethodPost, "/v1/transactions/"+created.Data.ID+"/reminder?force=true", nil)
	require.JSONEq(t, `{"data":{"sent":true}}`, w.Body.String())

	w = do(http.MethodGet, "/v1/transactions/"+created.Data.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, StatusCompleted, created.Data.Status)

	w = do(http.MethodGet, "/v1/transactions/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestParseExpiry(t *testing.T) {
	require.Nil(t, parseExpiry(""))
	require.Nil(t, parseExpiry("tomorrow"))

	got := parseExpiry("2026-01-02T10:30:00Z")
	require.NotNil(t, got)
	require.Equal(t, 10, got.Hour())

	got = parseExpiry("2026-01-02 10:30:00")
	require.NotNil(t, got)
	require.Equal(t, 30, got.Minute())
}
