package apispec

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	v, err := Load()
	require.NoError(t, err)
	require.NotNil(t, v)

	again, err := Load()
	require.NoError(t, err)
	assert.Same(t, v, again)
	assert.NotEmpty(t, Document())
}

func TestOperations(t *testing.T) {
	v, err := Load()
	require.NoError(t, err)

	ops := v.Operations()

	index := map[string]Operation{}
	for _, op := range ops {
		index[op.Method+" "+op.Path] = op
	}

	expected := map[string]bool{
		"POST /account/register":       false,
		"POST /account/verify":         false,
		"POST /account/refresh":        false,
		"GET /account/customer":        true,
		"PUT /account/customer":        true,
		"GET /account/customer/orders": true,
		"GET /account/qr":              true,
		"POST /devices":                false,
		"POST /feedbacks":              true,
		"GET /health":                  false,
		"GET /env":                     false,
		"GET /":                        false,
	}
	assert.Len(t, ops, len(expected))

	for key, secured := range expected {
		op, ok := index[key]
		if assert.True(t, ok, "missing operation %s", key) {
			assert.Equal(t, secured, op.Secured, key)
		}
	}
}

func TestValidateRequest(t *testing.T) {
	v, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		wantErr bool
	}{
		{"valid register", http.MethodPost, "/account/register", `{"phone":"5551234567"}`, false},
		{"register phone with formatting", http.MethodPost, "/account/register", `{"phone":"(555) 123-4567"}`, true},
		{"register missing phone", http.MethodPost, "/account/register", `{}`, true},
		{"valid verify", http.MethodPost, "/account/verify", `{"phone":"5551234567","code":"123456"}`, false},
		{"verify short code", http.MethodPost, "/account/verify", `{"phone":"5551234567","code":"123"}`, true},
		{"update with nulls", http.MethodPut, "/account/customer", `{"firstName":"Ada","lastName":null,"birthDate":null,"email":null}`, false},
		{"update omitting a field", http.MethodPut, "/account/customer", `{"firstName":"Ada","lastName":null,"birthDate":null}`, true},
		{"empty feedback subject", http.MethodPost, "/feedbacks", `{"subject":"","content":"great"}`, true},
		{"device", http.MethodPost, "/devices", `{"deviceId":"2Hk3","type":null,"name":"laptop","brand":null,"os":"linux","osVersion":null,"model":"amd64","isSimulator":false}`, false},
		{"get without body", http.MethodGet, "/account/customer/orders", "", false},
		{"unknown path", http.MethodGet, "/menu", "", true},
		{"wrong method", http.MethodDelete, "/account/customer", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body []byte
			if tt.body != "" {
				body = []byte(tt.body)
			}
			err := v.ValidateRequest(context.Background(), tt.method, tt.path, body)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateResponse(t *testing.T) {
	v, err := Load()
	require.NoError(t, err)

	jsonHeader := http.Header{"Content-Type": []string{"application/json"}}

	tests := []struct {
		name    string
		path    string
		status  int
		body    string
		wantErr bool
	}{
		{"valid customer", "/account/customer", 200, `{"id":"c1","phone":"5551234567","currentCoffees":3}`, false},
		{"customer missing id", "/account/customer", 200, `{"phone":"5551234567"}`, true},
		{"negative coffees", "/account/customer", 200, `{"id":"c1","phone":"1","currentCoffees":-1}`, true},
		{"orders", "/account/customer/orders", 200, `[{"id":"o1","orderDate":"2026-01-02T10:00:00","coffeeCount":2,"earnedReward":0}]`, false},
		{"error array", "/account/customer", 401, `["Unauthorized"]`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateResponse(context.Background(), http.MethodGet, tt.path, tt.status, jsonHeader, []byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
