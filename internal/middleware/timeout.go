package middleware

import (
	"net/http"
	"time"
)

// Timeout bounds a page or fragment. It buffers the response, so it must not
// wrap handlers that hijack the connection.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	message := `{"success":false,"error":{"code":"REQUEST_TIMEOUT","message":"The gateway did not answer in time. Please try again."}}`

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, message)
	}
}
