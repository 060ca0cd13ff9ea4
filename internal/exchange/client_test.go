package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ccruz0/crypto-2.0-sub003/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamStringSortsAndRecurses(t *testing.T) {
	got := paramString(map[string]any{
		"instrument_name": "BTC_USDT",
		"exec_inst":       []any{"POST_ONLY"},
		"nested":          map[string]any{"b": "2", "a": "1"},
	})
	assert.Equal(t, "exec_instPOST_ONLYinstrument_nameBTC_USDTnesteda1b2", got)
}

func TestParamStringEmptyObject(t *testing.T) {
	// An empty params object signs as an empty string, never "{}".
	assert.Equal(t, "", paramString(nil))
	assert.Equal(t, "", paramString(map[string]any{}))
}

func TestParamStringNumbers(t *testing.T) {
	got := paramString(map[string]any{"price": 50000.5, "quantity": 1})
	assert.Equal(t, "price50000.5quantity1", got)
}

func TestSign(t *testing.T) {
	params := map[string]any{"instrument_name": "BTC_USDT"}
	got := sign("secret", "private/create-order", 7, "key", params, 1700000000000)

	payload := "private/create-order" + "7" + "key" + "instrument_nameBTC_USDT" + "1700000000000"
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(payload))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), got)
}

func newTestClient(baseURL string) *Client {
	c := NewClient(config.ExchangeConfig{BaseURL: baseURL, APIKey: "key", APISecret: "secret", TimeoutSeconds: 5})
	return c
}

func TestCallBodyCodeOverridesHTTPSuccess(t *testing.T) {
	// HTTP 200 with a permission code in the body is the same rejection as
	// an HTTP-level error carrying that code.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":1,"code":306,"message":"create order disabled"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Call(context.Background(), MethodCreateOrder, map[string]any{"x": "y"})
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, CodeCreateOrderDisabled, apiErr.Code)
	assert.True(t, IsPermissionRejection(apiErr.Code))
}

func TestCallHTTPErrorWithBodyCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"id":1,"code":10004,"message":"bad request"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Call(context.Background(), MethodCreateOrder, nil)
	require.Error(t, err)
	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, CodeBadRequest, apiErr.Code)
	assert.True(t, IsFormatRejection(apiErr.Code))
}

func TestCreateOrderParsesAck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":1,"code":0,"result":{"order_id":"12345","client_oid":"abc"}}`))
	}))
	defer srv.Close()

	ack, err := newTestClient(srv.URL).CreateOrder(context.Background(), map[string]any{"instrument_name": "BTC_USDT"})
	require.NoError(t, err)
	assert.Equal(t, "12345", ack.OrderID)
	assert.Equal(t, "abc", ack.ClientOrderID)
}
