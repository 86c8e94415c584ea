package jobstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/lib/pq"
)

// wrap annotates err with op and marks connection-level failures with
// domain.ErrStoreUnavailable so callers can tell an outage from a rejection.
func wrap(op string, err error) error {
	if IsUnavailable(err) {
		return fmt.Errorf("failed to %s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// IsUnavailable reports whether err means the database could not be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, domain.ErrStoreUnavailable) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// 08: connection exception, 57P: operator intervention (shutdown, crash)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return pqErr.Code.Class() == "08" || strings.HasPrefix(code, "57P")
	}

	return false
}
