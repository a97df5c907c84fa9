package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func upstream(name string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(name + " " + r.Method + " " + r.URL.Path))
	}))
}

func get(t *testing.T, h http.Handler, method, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	b, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return rec.Code, string(b)
}

func TestRoutesByChain(t *testing.T) {
	base, arb := upstream("base"), upstream("arb")
	defer base.Close()
	defer arb.Close()

	g, err := New(zap.NewNop(), map[uint32]string{40245: base.URL, 40231: arb.URL})
	require.NoError(t, err)
	h := g.Router()

	code, body := get(t, h, http.MethodGet, "/api/chains/40245/v1/users/0xabc/balance")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "base GET /v1/users/0xabc/balance", body)

	code, body = get(t, h, http.MethodPost, "/api/chains/40231/v1/bets")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "arb POST /v1/bets", body)

	code, body = get(t, h, http.MethodGet, "/api/chains")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"chains":[40231,40245]}`, body)
}

func TestUnknownAndInvalidChains(t *testing.T) {
	g, err := New(zap.NewNop(), map[uint32]string{})
	require.NoError(t, err)
	h := g.Router()

	code, _ := get(t, h, http.MethodGet, "/api/chains/1/v1/bets")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = get(t, h, http.MethodGet, "/api/chains/abc/v1/bets")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = get(t, h, http.MethodOptions, "/api/chains/1/v1/bets")
	assert.Equal(t, http.StatusNoContent, code)
}

func TestUpstreamDown(t *testing.T) {
	dead := upstream("dead")
	url := dead.URL
	dead.Close()

	g, err := New(zap.NewNop(), map[uint32]string{7: url})
	require.NoError(t, err)
	code, _ := get(t, g.Router(), http.MethodGet, "/api/chains/7/v1/bets")
	assert.Equal(t, http.StatusBadGateway, code)
}

func TestRejectsBadNodeURL(t *testing.T) {
	_, err := New(zap.NewNop(), map[uint32]string{1: "localhost"})
	assert.Error(t, err)
}
