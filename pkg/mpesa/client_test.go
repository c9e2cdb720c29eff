package mpesa

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanfoods/backend/pkg/config"
	"github.com/urbanfoods/backend/pkg/enums"
	pkgerrors "github.com/urbanfoods/backend/pkg/errors"
	"github.com/urbanfoods/backend/pkg/logger"
)

func testMpesaConfig() config.MpesaConfig {
	return config.MpesaConfig{
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		Passkey:        "passkey",
		PaybillNumber:  "174379",
		TillNumber:     "555111",
		CallbackURL:    "https://example.com/api/v1/webhooks/mpesa",
		TokenTTL:       3500 * time.Second,
		TokenTimeout:   5 * time.Second,
		HTTPTimeout:    5 * time.Second,
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(ClientParams{
		Config:  testMpesaConfig(),
		Cache:   NewMemoryTokenCache(),
		Logger:  logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		BaseURL: baseURL,
	})
	require.NoError(t, err)
	return client
}

func TestInitiateSTKPushTruncatesAmountAndCachesToken(t *testing.T) {
	tokenCalls := 0
	var pushBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/oauth/v1/generate":
			tokenCalls++
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "key", user)
			assert.Equal(t, "secret", pass)
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})

		case r.URL.Path == "/mpesa/stkpush/v1/processrequest":
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&pushBody))
			json.NewEncoder(w).Encode(map[string]string{
				"ResponseCode":      "0",
				"CheckoutRequestID": "ws_CO_12345",
				"CustomerMessage":   "Success. Request accepted for processing",
			})

		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	params := STKPushParams{
		PhoneNumber:      "254712345678",
		Amount:           decimal.RequireFromString("520.75"),
		AccountReference: "UF-ABCDEFGHJK",
		TransactionDesc:  "UrbanFoods order payment",
		StoreType:        enums.StoreTypeLiquor,
	}

	result, err := client.InitiateSTKPush(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_12345", result.CheckoutRequestID)

	// Daraja only accepts whole shillings.
	assert.Equal(t, float64(520), pushBody["Amount"])
	assert.Equal(t, "CustomerPayBillOnline", pushBody["TransactionType"])
	assert.Equal(t, "174379", pushBody["BusinessShortCode"])
	// Description capped at the provider's 13-char limit.
	assert.Equal(t, "UrbanFoods or", pushBody["TransactionDesc"])

	_, err = client.InitiateSTKPush(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, 1, tokenCalls, "second push should reuse the cached token")
}

func TestInitiateSTKPushUsesTillForFoodOrders(t *testing.T) {
	var pushBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&pushBody))
		json.NewEncoder(w).Encode(map[string]string{"ResponseCode": "0", "CheckoutRequestID": "ws_1"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.InitiateSTKPush(context.Background(), STKPushParams{
		PhoneNumber:      "254712345678",
		Amount:           decimal.NewFromInt(300),
		AccountReference: "UF-ABCDEFGHJK",
		TransactionDesc:  "UrbanFoods",
		StoreType:        enums.StoreTypeFood,
	})
	require.NoError(t, err)

	assert.Equal(t, "555111", pushBody["BusinessShortCode"])
	assert.Equal(t, "CustomerBuyGoodsOnline", pushBody["TransactionType"])
	// Till references are capped at 12 chars.
	assert.Equal(t, "UF-ABCDEFGHJ", pushBody["AccountReference"])
}

func TestInitiateSTKPushRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"ResponseCode":        "1",
			"ResponseDescription": "Insufficient balance on shortcode",
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.InitiateSTKPush(context.Background(), STKPushParams{
		PhoneNumber:      "254712345678",
		Amount:           decimal.NewFromInt(100),
		AccountReference: "UF-X",
		StoreType:        enums.StoreTypeLiquor,
	})
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())
}

func TestQuerySTKStatusToleratesStringResultCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v1/generate" {
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ResultCode": "1032",
			"ResultDesc": "Request cancelled by user",
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	result, err := client.QuerySTKStatus(context.Background(), "ws_CO_12345")
	require.NoError(t, err)
	assert.Equal(t, 1032, result.ResultCode)
	assert.Equal(t, "Request cancelled by user", result.ResultDesc)
}
