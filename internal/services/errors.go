package services

import (
	"errors"
	"fmt"
)

var (
	ErrSlotConflict               = errors.New("slot conflict")
	ErrInvalidRequest             = errors.New("invalid request")
	ErrGatewayUnavailable         = errors.New("payment gateway unavailable")
	ErrAlreadyFinalized           = errors.New("reservation already finalized")
	ErrMalformedNotification      = errors.New("malformed notification")
	ErrReconciliationLookupFailed = errors.New("reconciliation lookup failed")
	ErrReservationNotFound        = errors.New("reservation not found")
	ErrInvalidStatus              = errors.New("invalid status")
	ErrRefundExists               = errors.New("refund already recorded")
	ErrRefundNotAllowed           = errors.New("refund not allowed")
	ErrTimeBlockNotFound          = errors.New("time block not found")
)

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
