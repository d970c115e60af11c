package entity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInputError_Error(t *testing.T) {
	err := &InputError{Field: "limit", Message: "too large"}
	assert.Equal(t, "validation error on field 'limit': too large", err.Error())
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "blocked", err: &BlockedTargetError{Code: CodePrivateTarget, URL: "http://10.0.0.1/"}, want: CodePrivateTarget},
		{name: "transient", err: &TransientFetchError{Code: CodeTimeout, URL: "https://example.com"}, want: CodeTimeout},
		{name: "wrapped transient", err: fmt.Errorf("native refresh: %w", &TransientFetchError{Code: CodeHTTPStatus, Status: 503}), want: CodeHTTPStatus},
		{name: "validation", err: &ValidationError{Format: FormatRSS, Errors: []string{"missing channel"}}, want: "validation_failed"},
		{name: "empty", err: &ExtractionEmptyError{SourceURL: "https://example.com"}, want: "extraction_empty"},
		{name: "unrecognized page", err: fmt.Errorf("nextjs: %w", ErrUnrecognizedPage), want: "unrecognized_page"},
		{name: "other", err: errors.New("boom"), want: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestHTTPStatusOf(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &TransientFetchError{Code: CodeHTTPStatus, Status: 502})
	assert.Equal(t, 502, HTTPStatusOf(err))
	assert.Equal(t, 0, HTTPStatusOf(errors.New("plain")))
}

func TestTransientFetchError_Unwrap(t *testing.T) {
	err := &TransientFetchError{Code: CodeTimeout, URL: "https://example.com", Err: context.DeadlineExceeded}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timeout")
}

func TestExtractionEmptyError_Error(t *testing.T) {
	assert.Equal(t, "no items extracted from https://a.example", (&ExtractionEmptyError{SourceURL: "https://a.example"}).Error())
	assert.Contains(t, (&ExtractionEmptyError{SourceURL: "https://a.example", Extracted: 4}).Error(), "after filtering 4")
}
