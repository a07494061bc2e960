package fabric

import (
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the Fabric or Power BI service.
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	RequestID  string `json:"requestId,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("fabric API %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("fabric API %d: %s", e.StatusCode, e.Message)
}

// IsThrottled reports whether the service rejected the call for rate
// limiting.
func (e *APIError) IsThrottled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsAuth reports whether the call failed on credentials or permissions.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}
