package handlers

import (
	"errors"

	"github.com/segmentio/kafka-go"
)

// UnknownErrorCode is reported when a downstream error carries no code.
const UnknownErrorCode = "UNKNOWN_ERROR"

// coded is satisfied by AWS API errors.
type coded interface {
	ErrorCode() string
}

// ErrorCode extracts the downstream error code from err.
func ErrorCode(err error) string {
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return kerr.Title()
	}
	var c coded
	if errors.As(err, &c) && c.ErrorCode() != "" {
		return c.ErrorCode()
	}
	return UnknownErrorCode
}
