package validation

import (
	"testing"
)

func TestValidateConcurrency(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		wantErr bool
	}{
		{"valid minimum", 1, false},
		{"valid middle", 8, false},
		{"valid maximum", 16, false},
		{"too low", 0, true},
		{"negative", -1, true},
		{"too high", 17, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConcurrency(tt.n)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConcurrency(%d) error = %v, wantErr %v", tt.n, err, tt.wantErr)
			}
		})
	}
}

func TestValidateNonEmptyString(t *testing.T) {
	tests := []struct {
		name      string
		fieldName string
		value     string
		wantErr   bool
	}{
		{"valid string", "email", "a@example.com", false},
		{"empty string", "email", "", true},
		{"only spaces", "name", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNonEmptyString(tt.fieldName, tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNonEmptyString(%q, %q) error = %v, wantErr %v", tt.fieldName, tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"http localhost", "http://localhost:8080", false},
		{"https with path", "https://api.example.com/v1", false},
		{"no scheme", "api.example.com", true},
		{"ftp scheme", "ftp://example.com", true},
		{"missing host", "http://", true},
		{"query", "https://example.com?x=1", true},
		{"fragment", "https://example.com#top", true},
		{"unparseable", "http://[::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBaseURL(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBaseURL(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
		})
	}
}

func TestValidateHTTPMethod(t *testing.T) {
	for _, m := range []string{"GET", "post", "Put", "PATCH", "delete"} {
		if err := ValidateHTTPMethod(m); err != nil {
			t.Errorf("ValidateHTTPMethod(%q) unexpected error: %v", m, err)
		}
	}
	for _, m := range []string{"", "HEAD", "CONNECT", "FETCH"} {
		if err := ValidateHTTPMethod(m); err == nil {
			t.Errorf("ValidateHTTPMethod(%q) expected error", m)
		}
	}
}

func TestValidateRequestPath(t *testing.T) {
	if err := ValidateRequestPath("/expenses"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateRequestPath("expenses"); err == nil {
		t.Error("expected error for relative path")
	}
}
