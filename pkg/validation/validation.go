package validation

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	MinConcurrency = 1
	MaxConcurrency = 16
)

func ValidateConcurrency(n int) error {
	if n < MinConcurrency || n > MaxConcurrency {
		return fmt.Errorf("concurrency must be between %d and %d, got %d", MinConcurrency, MaxConcurrency, n)
	}
	return nil
}

func ValidateNonEmptyString(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

// ValidateBaseURL accepts absolute http(s) URLs without query or fragment.
func ValidateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid API URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid API URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid API URL %q: missing host", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid API URL %q: must not carry a query or fragment", raw)
	}
	return nil
}

func ValidateHTTPMethod(method string) error {
	switch strings.ToUpper(method) {
	case "GET", "POST", "PUT", "PATCH", "DELETE":
		return nil
	}
	return fmt.Errorf("invalid HTTP method: %s (must be one of: GET, POST, PUT, PATCH, DELETE)", method)
}

func ValidateRequestPath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("request path must start with '/', got %q", path)
	}
	return nil
}
