package jobstore

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUnavailable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "bad connection", err: driver.ErrBadConn, expected: true},
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), expected: true},
		{name: "dial refused", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, expected: true},
		{name: "connection exception", err: &pq.Error{Code: "08006"}, expected: true},
		{name: "admin shutdown", err: &pq.Error{Code: "57P01"}, expected: true},
		{name: "check violation", err: &pq.Error{Code: "23514"}, expected: false},
		{name: "plain error", err: errors.New("syntax error"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsUnavailable(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	err := wrap("enqueue job", driver.ErrBadConn)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, err, driver.ErrBadConn)
	assert.Contains(t, err.Error(), "failed to enqueue job")

	err = wrap("enqueue job", errors.New("duplicate"))
	assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
}
