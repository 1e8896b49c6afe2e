package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeFetch represents network, browser or non-success status failures
	ErrorTypeFetch ErrorType = "fetch"
	// ErrorTypeParsing represents malformed calendar cells or slot rows
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeNotify represents message delivery failures
	ErrorTypeNotify ErrorType = "notify"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
)

// CheckError is an error raised somewhere inside an availability check cycle
type CheckError struct {
	Type      ErrorType
	Component string
	Message   string
	Err       error
	Time      time.Time
}

// Error implements the error interface
func (e *CheckError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *CheckError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *CheckError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeFetch:
		return true
	default:
		return false
	}
}

// New creates a new CheckError
func New(errType ErrorType, component, message string, err error) *CheckError {
	return &CheckError{
		Type:      errType,
		Component: component,
		Message:   message,
		Err:       err,
		Time:      time.Now(),
	}
}

// NewFetch creates a new fetch error
func NewFetch(component, message string, err error) *CheckError {
	return New(ErrorTypeFetch, component, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(component, message string, err error) *CheckError {
	return New(ErrorTypeParsing, component, message, err)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(component string, duration time.Duration) *CheckError {
	message := fmt.Sprintf("rate limited for %v", duration)
	return New(ErrorTypeRateLimit, component, message, nil)
}

// NewNotify creates a new notification error
func NewNotify(component, message string, err error) *CheckError {
	return New(ErrorTypeNotify, component, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *CheckError {
	return New(ErrorTypeConfiguration, "config", message, err)
}

// NewCache creates a new cache error
func NewCache(component, message string, err error) *CheckError {
	return New(ErrorTypeCache, component, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(component, message string, err error) *CheckError {
	return New(ErrorTypePublisher, component, message, err)
}

// IsType reports whether any error in err's chain is a CheckError of the given type
func IsType(err error, errType ErrorType) bool {
	var checkErr *CheckError
	if stderrors.As(err, &checkErr) {
		return checkErr.Type == errType
	}
	return false
}

// IsRetryable reports whether err carries a retryable CheckError
func IsRetryable(err error) bool {
	var checkErr *CheckError
	if stderrors.As(err, &checkErr) {
		return checkErr.IsRetryable()
	}
	return false
}
