package service

import "testing"

func TestJWKSHealthPath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "путь JWKS realm",
			input:    "https://idp.example.lan/realms/anchors/protocol/openid-connect/certs",
			expected: "/realms/anchors/protocol/openid-connect/certs",
		},
		{
			name:     "well-known",
			input:    "https://idp.example.lan/.well-known/jwks.json",
			expected: "/.well-known/jwks.json",
		},
		{
			name:     "без пути — /health",
			input:    "https://idp.example.lan",
			expected: "/health",
		},
		{
			name:     "некорректный URL — /health",
			input:    "://bad",
			expected: "/health",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JWKSHealthPath(tt.input); got != tt.expected {
				t.Errorf("JWKSHealthPath(%q) = %q, ожидалось %q", tt.input, got, tt.expected)
			}
		})
	}
}
