package utils

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		name     string
		base     *big.Int
		decimals int32
		expected string
	}{
		{name: "wei", base: big.NewInt(10000000000), decimals: 18, expected: "0.00000001"},
		{name: "lamports", base: big.NewInt(2500000000), decimals: 9, expected: "2.5"},
		{name: "sun", base: big.NewInt(5000000), decimals: 6, expected: "5"},
		{name: "zero", base: big.NewInt(0), decimals: 6, expected: "0"},
		{name: "nil", base: nil, decimals: 9, expected: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatUnits(tt.base, tt.decimals).String())
		})
	}
}

func TestFormatUnitsKeepsPrecision(t *testing.T) {
	// 2^70 wei does not fit a float64 mantissa
	base := new(big.Int).Lsh(big.NewInt(1), 70)
	amount := FormatUnits(base, 18)
	assert.Equal(t, "1180.591620717411303424", amount.String())
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals int32
		expected string
		wantErr  bool
	}{
		{name: "whole SOL", amount: "1", decimals: 9, expected: "1000000000"},
		{name: "fractional SOL", amount: "2.5", decimals: 9, expected: "2500000000"},
		{name: "ether", amount: "0.000000000000000001", decimals: 18, expected: "1"},
		{name: "too precise", amount: "0.0000001", decimals: 6, wantErr: true},
		{name: "negative", amount: "-1", decimals: 6, wantErr: true},
		{name: "garbage", amount: "abc", decimals: 6, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnits(tt.amount, tt.decimals)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.String())
		})
	}
}

func TestMakeJSONRequest(t *testing.T) {
	type reply struct {
		Echo string `json:"echo"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(reply{Echo: body["msg"]})
	}))
	defer server.Close()

	result, err := MakeJSONRequest[reply](context.Background(), server.Client(), http.MethodPost, server.URL,
		map[string]string{"msg": "hi"}, map[string]string{"X-Token": "secret"}, "echo")
	require.NoError(t, err)
	assert.Equal(t, "hi", result.Echo)
}

func TestMakeJSONRequestHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"agent offline","details":"no wallet attached"}`))
	}))
	defer server.Close()

	_, err := MakeJSONRequest[map[string]any](context.Background(), server.Client(), http.MethodPost, server.URL, []byte(`{}`), nil, "bridge")
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, "HTTP 502: agent offline - no wallet attached", httpErr.Error())
}
