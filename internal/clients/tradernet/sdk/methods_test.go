package sdk

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	log := zerolog.New(nil).Level(zerolog.Disabled)
	client := NewClient("test_public_key", "test_private_key", log)
	client.baseURL = server.URL
	return client, func() {
		client.Close()
		server.Close()
	}
}

func TestBuy_MarketOrder(t *testing.T) {
	var gotPayload map[string]interface{}
	client, cleanup := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := readBody(r)
		_ = json.Unmarshal(body, &gotPayload)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"order_id": 123})
	})
	defer cleanup()

	result, err := client.Buy("AAPL.US", 10, 0, "day", false, nil)
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, float64(1), gotPayload["order_type_id"], "price=0 should place a market order")
	assert.Equal(t, float64(1), gotPayload["action_id"], "buy without margin should use action_id 1")
}

func TestBuy_LimitOrder(t *testing.T) {
	var gotPayload map[string]interface{}
	client, cleanup := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := readBody(r)
		_ = json.Unmarshal(body, &gotPayload)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"order_id": 124})
	})
	defer cleanup()

	_, err := client.Buy("AAPL.US", 10, 150.5, "day", false, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(2), gotPayload["order_type_id"], "price>0 should place a limit order")
	assert.Equal(t, 150.5, gotPayload["limit_price"])
}

func TestBuy_RejectsNonPositiveQuantity(t *testing.T) {
	client, cleanup := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be called")
	})
	defer cleanup()

	_, err := client.Buy("AAPL.US", 0, 0, "day", false, nil)
	assert.Error(t, err)
}

func TestSell_NegatesQuantity(t *testing.T) {
	var gotPayload map[string]interface{}
	client, cleanup := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := readBody(r)
		_ = json.Unmarshal(body, &gotPayload)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"order_id": 125})
	})
	defer cleanup()

	_, err := client.Sell("AAPL.US", 10, 0, "day", false, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(10), gotPayload["qty"], "Trade stores the absolute quantity")
	assert.Equal(t, float64(3), gotPayload["action_id"], "sell without margin should use action_id 3")
}

func TestTrade_RejectsInvalidOrderType(t *testing.T) {
	client, cleanup := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be called")
	})
	defer cleanup()

	_, err := client.Trade("AAPL.US", 10, 9, nil, nil, "day", false, nil)
	assert.Error(t, err)
}

func TestTrade_RejectsUnknownDuration(t *testing.T) {
	client, cleanup := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be called")
	})
	defer cleanup()

	_, err := client.Trade("AAPL.US", 10, 1, nil, nil, "whenever", false, nil)
	assert.Error(t, err)
}

func TestTrade_IOCCancelsImmediately(t *testing.T) {
	var requestCount int
	var canceledOrderID float64
	client, cleanup := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		body, _ := readBody(r)
		var payload map[string]interface{}
		_ = json.Unmarshal(body, &payload)

		w.Header().Set("Content-Type", "application/json")
		if orderID, ok := payload["order_id"]; ok {
			canceledOrderID = orderID.(float64)
			json.NewEncoder(w).Encode(map[string]interface{}{"error_code": 0})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"order_id": 777})
	})
	defer cleanup()

	_, err := client.Trade("AAPL.US", 10, 1, nil, nil, "ioc", false, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, requestCount, "IOC places a day order then cancels it")
	assert.Equal(t, float64(777), canceledOrderID)
}

func TestCancel_ReturnsErrorOnNonZeroCode(t *testing.T) {
	client, cleanup := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error_code":    12,
			"error_message": "not your order",
		})
	})
	defer cleanup()

	_, err := client.Cancel(1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no permission")
}

func TestGetPlaced_PassesActiveOnly(t *testing.T) {
	var gotPayload map[string]interface{}
	client, cleanup := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := readBody(r)
		_ = json.Unmarshal(body, &gotPayload)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"result": []interface{}{}})
	})
	defer cleanup()

	_, err := client.GetPlaced(true)
	require.NoError(t, err)
	assert.Equal(t, float64(1), gotPayload["active_only"])
}

func TestGetTradesHistory_BuildsParams(t *testing.T) {
	var gotPayload map[string]interface{}
	client, cleanup := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := readBody(r)
		_ = json.Unmarshal(body, &gotPayload)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"result": []interface{}{}})
	})
	defer cleanup()

	limit := 50
	_, err := client.GetTradesHistory("2024-01-01", "2024-01-31", nil, &limit, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", gotPayload["beginDate"])
	assert.Equal(t, float64(50), gotPayload["max"])
}

func TestGetQuotes_JoinsSymbols(t *testing.T) {
	var gotPayload map[string]interface{}
	client, cleanup := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := readBody(r)
		_ = json.Unmarshal(body, &gotPayload)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"result": []interface{}{}})
	})
	defer cleanup()

	_, err := client.GetQuotes([]string{"AAPL.US", "MSFT.US"})
	require.NoError(t, err)
	assert.Equal(t, "AAPL.US,MSFT.US", gotPayload["tickers"])
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
