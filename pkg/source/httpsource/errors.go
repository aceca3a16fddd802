package httpsource

import (
	"errors"
	"fmt"
)

// ErrDecode is returned when a response body is not a valid page envelope.
var ErrDecode = errors.New("decode page")

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network errors.
	ErrorClassNetwork ErrorClass = "network"
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	StatusCode int
	Status     string

	// Body holds the start of the response body.
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("source %s error (status %d): %s", e.Class(), e.StatusCode, e.Body)
	}
	return fmt.Sprintf("source %s error (status %d): %s", e.Class(), e.StatusCode, e.Status)
}

// Class classifies the status code.
func (e *StatusError) Class() ErrorClass {
	return classifyStatus(e.StatusCode)
}

// Retryable reports false for client errors; repeating the same query
// cannot change the answer.
func (e *StatusError) Retryable() bool {
	return e.Class() != ErrorClassClient
}

func classifyStatus(code int) ErrorClass {
	switch {
	case code == 429:
		return ErrorClassRateLimit
	case code >= 400 && code < 500:
		return ErrorClassClient
	case code >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
