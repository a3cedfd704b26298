// Package validation checks request input before it reaches the order
// service.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// MaxRequestSize is the maximum request body size (64KB). A single event
// is a few hundred bytes.
const MaxRequestSize = 64 << 10

const (
	MaxRefLength  = 64
	MaxGUIDLength = 64
)

var (
	// order references and event GUIDs: letters, digits, dot, dash, underscore
	identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidIdentifier reports whether s is a usable order reference or GUID
// of at most max bytes.
func IsValidIdentifier(s string, max int) bool {
	return len(s) <= max && identifierRegex.MatchString(s)
}

// SanitizeString trims whitespace, limits length and removes null bytes.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs every validator and collects the failures.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// Identifier checks an optional order reference or GUID field.
func Identifier(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidIdentifier(value, MaxGUIDLength) {
			return &ValidationError{Field: field, Message: "must be 1-64 letters, digits, '.', '-' or '_'"}
		}
		return nil
	}
}

// NonNegativeAmount checks a decimal amount string. Zero is allowed: a
// failed or skipped event may carry no amount.
func NonNegativeAmount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			return &ValidationError{Field: field, Message: "invalid amount format"}
		}
		if d.IsNegative() {
			return &ValidationError{Field: field, Message: "must not be negative"}
		}
		return nil
	}
}

// OrderRefParamMiddleware rejects malformed :ref URL parameters early.
func OrderRefParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ref := c.Param("ref"); ref != "" && !IsValidIdentifier(ref, MaxRefLength) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_order_ref",
				"message": "order reference must be 1-64 letters, digits, '.', '-' or '_'",
			})
			return
		}
		c.Next()
	}
}
