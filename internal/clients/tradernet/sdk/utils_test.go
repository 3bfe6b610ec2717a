package sdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSign_MatchesPythonSDK tests that our sign function produces the same output
// as the Python SDK's sign function for the same inputs.
// Python: hmac.new(key.encode(), msg.encode(), digestmod='sha256').hexdigest()
func TestSign_MatchesPythonSDK(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		message string
		want    string
	}{
		{
			name:    "empty message",
			key:     "test_key",
			message: "",
			want:    "d056b2b640f407a9daeba0b13c3b3966e5b69e84283ec3c7fa0cac56a02208a7",
		},
		{
			name:    "simple message",
			key:     "secret",
			message: "hello",
			want:    "88aab3ede8d3adf94d26ab90d3bafd4a2083070c3bcce9c014ee04a443847c0b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sign(tt.key, tt.message)
			assert.Equal(t, tt.want, got, "signature should match Python SDK output")
		})
	}
}

// TestSign_ProducesValidHMAC tests that sign produces a valid HMAC-SHA256 hex string
func TestSign_ProducesValidHMAC(t *testing.T) {
	key := "test_key"
	message := "test_message"

	result := sign(key, message)

	assert.Len(t, result, 64, "HMAC-SHA256 should produce 64 hex characters")
	for _, c := range result {
		assert.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'),
			"result should be lowercase hex: %c", c)
	}
}

// TestSign_Deterministic tests that sign produces the same output for the same inputs
func TestSign_Deterministic(t *testing.T) {
	key := "test_key"
	message := "test_message"

	result1 := sign(key, message)
	result2 := sign(key, message)

	assert.Equal(t, result1, result2, "sign should be deterministic")
}

// TestStringify_CompactJSON tests that stringify produces compact JSON (no spaces)
func TestStringify_CompactJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{
			name:     "empty object",
			input:    map[string]interface{}{},
			expected: "{}",
		},
		{
			name:     "nested object",
			input:    map[string]interface{}{"params": map[string]interface{}{"ticker": "AAPL.US"}},
			expected: `{"params":{"ticker":"AAPL.US"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := stringify(tt.input)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, result)
			assert.NotContains(t, result, " ", "JSON should not contain spaces")
		})
	}
}

// TestStringify_FieldOrderPreserved tests that struct field order (not map key
// order) drives output order, matching Python's dict insertion order.
func TestStringify_FieldOrderPreserved(t *testing.T) {
	params := PutTradeOrderParams{
		InstrName:    "AAPL.US",
		ActionID:     1,
		OrderTypeID:  2,
		Qty:          10,
		ExpirationID: 1,
	}

	result, err := stringify(params)
	assert.NoError(t, err)

	expected := `{"instr_name":"AAPL.US","action_id":1,"order_type_id":2,"qty":10,"expiration_id":1}`
	assert.Equal(t, expected, result, "field order must match struct definition order")
}

func TestAbsInt(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"positive number", 5, 5},
		{"negative number", -5, 5},
		{"zero", 0, 0},
		{"large positive", 1000, 1000},
		{"large negative", -1000, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := absInt(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}
