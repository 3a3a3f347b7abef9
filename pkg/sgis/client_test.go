package sgis

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer serves auth, reverse-geocode, and neighbor endpoints with
// canned payloads, counting auth calls.
func newTestServer(t *testing.T, authCalls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/authentication.json":
			authCalls.Add(1)
			timeout := time.Now().Add(2 * time.Hour).UnixMilli()
			fmt.Fprintf(w, `{"errCd": 0, "errMsg": "Success", "result": {"accessToken": "tok-%d", "accessTimeout": "%d"}}`, authCalls.Load(), timeout)
		case "/addr/rgeocodewgs84.json":
			if r.URL.Query().Get("accessToken") == "" {
				w.Write([]byte(`{"errCd": -401, "errMsg": "Token expired"}`))
				return
			}
			assert.Equal(t, "20", r.URL.Query().Get("addr_type"))
			w.Write([]byte(`{"errCd": 0, "errMsg": "Success", "result": [
				{"adm_dr_cd": "1123051", "adm_dr_nm": "역삼1동", "sgg_nm": "강남구", "sido_nm": "서울특별시"}
			]}`))
		case "/boundary/neighbor.json":
			w.Write([]byte(`{"errCd": 0, "errMsg": "Success", "result": [
				{"adm_cd": "1123051", "adm_nm": "역삼1동", "sgg_nm": "강남구", "sido_nm": "서울특별시"},
				{"adm_cd": "1123052", "adm_nm": "역삼2동", "sgg_nm": "강남구", "sido_nm": "서울특별시"},
				{"adm_cd": "1122052", "adm_nm": "서초2동", "sgg_nm": "서초구", "sido_nm": "서울특별시"}
			]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
}

func TestUnitAt(t *testing.T) {
	var authCalls atomic.Int64
	srv := newTestServer(t, &authCalls)
	defer srv.Close()

	c := NewClient("key", "secret", WithBaseURL(srv.URL))
	unit, err := c.UnitAt(context.Background(), 37.497942, 127.027621)
	require.NoError(t, err)
	require.NotNil(t, unit)

	assert.Equal(t, "1123051", unit.Code)
	assert.Equal(t, "역삼1동", unit.Name)
	assert.Equal(t, "강남구", unit.District)
	assert.Equal(t, "서울특별시", unit.Province)
	assert.Equal(t, int64(1), authCalls.Load())
}

func TestTokenReused(t *testing.T) {
	var authCalls atomic.Int64
	srv := newTestServer(t, &authCalls)
	defer srv.Close()

	c := NewClient("key", "secret", WithBaseURL(srv.URL))
	ctx := context.Background()

	_, err := c.UnitAt(ctx, 37.49, 127.02)
	require.NoError(t, err)
	_, err = c.UnitAt(ctx, 37.50, 127.03)
	require.NoError(t, err)

	// Second call reuses the cached token.
	assert.Equal(t, int64(1), authCalls.Load())
}

func TestTokenRefreshOnExpiry(t *testing.T) {
	var authCalls, dataCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/authentication.json":
			authCalls.Add(1)
			timeout := time.Now().Add(2 * time.Hour).UnixMilli()
			fmt.Fprintf(w, `{"errCd": 0, "result": {"accessToken": "tok-%d", "accessTimeout": "%d"}}`, authCalls.Load(), timeout)
		case "/addr/rgeocodewgs84.json":
			// First data call reports an expired token; the retry succeeds.
			if dataCalls.Add(1) == 1 {
				w.Write([]byte(`{"errCd": -401, "errMsg": "Token expired"}`))
				return
			}
			assert.Equal(t, "tok-2", r.URL.Query().Get("accessToken"))
			w.Write([]byte(`{"errCd": 0, "result": [{"adm_dr_cd": "1123051", "adm_dr_nm": "역삼1동"}]}`))
		}
	}))
	defer srv.Close()

	c := NewClient("key", "secret", WithBaseURL(srv.URL))
	unit, err := c.UnitAt(context.Background(), 37.49, 127.02)
	require.NoError(t, err)
	require.NotNil(t, unit)
	assert.Equal(t, "1123051", unit.Code)
	assert.Equal(t, int64(2), authCalls.Load())
}

func TestUnitAtOutsideBoundary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/authentication.json":
			timeout := time.Now().Add(2 * time.Hour).UnixMilli()
			fmt.Fprintf(w, `{"errCd": 0, "result": {"accessToken": "tok", "accessTimeout": "%d"}}`, timeout)
		case "/addr/rgeocodewgs84.json":
			w.Write([]byte(`{"errCd": -100, "errMsg": "조회 결과가 없습니다"}`))
		}
	}))
	defer srv.Close()

	c := NewClient("key", "secret", WithBaseURL(srv.URL))
	unit, err := c.UnitAt(context.Background(), 35.0, 139.0)
	require.NoError(t, err)
	assert.Nil(t, unit)
}

func TestNeighborsExcludesSelf(t *testing.T) {
	var authCalls atomic.Int64
	srv := newTestServer(t, &authCalls)
	defer srv.Close()

	c := NewClient("key", "secret", WithBaseURL(srv.URL))
	units, err := c.Neighbors(context.Background(), "1123051")
	require.NoError(t, err)

	require.Len(t, units, 2)
	assert.Equal(t, "1123052", units[0].Code)
	assert.Equal(t, "1122052", units[1].Code)
}

func TestAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errCd": -99, "errMsg": "인증 정보가 올바르지 않습니다"}`))
	}))
	defer srv.Close()

	c := NewClient("bad", "creds", WithBaseURL(srv.URL))
	_, err := c.UnitAt(context.Background(), 37.49, 127.02)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authenticate")
}
