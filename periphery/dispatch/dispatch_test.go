package dispatch

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postEnvelope(t *testing.T, d *Dispatcher, reqType string, params interface{}, passkey string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"type": reqType, "params": params})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("authorization", passkey)
	rec := httptest.NewRecorder()
	d.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandle_DispatchesToRegisteredHandler(t *testing.T) {
	d := New("secret", nil)
	d.Register("GetVersion", func(r *http.Request, params json.RawMessage) (interface{}, error) {
		return map[string]string{"version": "1.2.3"}, nil
	})

	rec := postEnvelope(t, d, "GetVersion", map[string]string{}, "secret")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1.2.3")
}

func TestHandle_WrongPasskeyIsUnauthorized(t *testing.T) {
	d := New("secret", nil)
	d.Register("GetVersion", func(r *http.Request, params json.RawMessage) (interface{}, error) {
		return nil, nil
	})

	rec := postEnvelope(t, d, "GetVersion", map[string]string{}, "wrong")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandle_UnknownTypeIsBadRequest(t *testing.T) {
	d := New("secret", nil)
	rec := postEnvelope(t, d, "NoSuchType", map[string]string{}, "secret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAllowlist_BlocksUnlistedSourceIP(t *testing.T) {
	d := New("secret", []net.IP{net.ParseIP("10.0.0.5")})
	d.Register("GetVersion", func(r *http.Request, params json.RawMessage) (interface{}, error) {
		return nil, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"type":"GetVersion","params":{}}`)))
	req.Header.Set("authorization", "secret")
	req.RemoteAddr = "203.0.113.1:1234"
	rec := httptest.NewRecorder()
	d.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAllowlist_AllowsListedSourceIP(t *testing.T) {
	d := New("secret", []net.IP{net.ParseIP("10.0.0.5")})
	d.Register("GetVersion", func(r *http.Request, params json.RawMessage) (interface{}, error) {
		return map[string]string{"ok": "true"}, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"type":"GetVersion","params":{}}`)))
	req.Header.Set("authorization", "secret")
	req.RemoteAddr = "10.0.0.5:1234"
	rec := httptest.NewRecorder()
	d.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
