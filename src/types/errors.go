package types

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	CodeUnauthenticated    ErrorCode = "unauthenticated"
	CodeInvalidArgument    ErrorCode = "invalid-argument"
	CodeNotFound           ErrorCode = "not-found"
	CodeFailedPrecondition ErrorCode = "failed-precondition"
	CodePermissionDenied   ErrorCode = "permission-denied"
	CodePaymentGateway     ErrorCode = "payment-gateway-error"
	CodeAborted            ErrorCode = "aborted"
	CodeInternal           ErrorCode = "internal"
)

// Error is a coded error. Sentinels are compared by identity; wrap them with fmt.Errorf("%w") to add context.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrUnauthenticated       = &Error{Code: CodeUnauthenticated, Message: "authentication required"}
	ErrPermissionDenied      = &Error{Code: CodePermissionDenied, Message: "permission denied"}
	ErrInvalidArgument       = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrNotFound              = &Error{Code: CodeNotFound, Message: "not found"}
	ErrRaffleNotFound        = &Error{Code: CodeNotFound, Message: "raffle not found"}
	ErrOrderNotFound         = &Error{Code: CodeNotFound, Message: "order not found"}
	ErrUserNotFound          = &Error{Code: CodeNotFound, Message: "user not found"}
	ErrWinnerNotFound        = &Error{Code: CodeNotFound, Message: "winner not found"}
	ErrInsufficientInventory = &Error{Code: CodeFailedPrecondition, Message: "insufficient inventory"}
	ErrRaffleNotActive       = &Error{Code: CodeFailedPrecondition, Message: "raffle is not active"}
	ErrRaffleFinalized       = &Error{Code: CodeFailedPrecondition, Message: "raffle already finalized"}
	ErrTicketsExist          = &Error{Code: CodeFailedPrecondition, Message: "raffle already has tickets"}
	ErrOrderNotReserved      = &Error{Code: CodeFailedPrecondition, Message: "order is not reserved"}
	ErrOrderReleased         = &Error{Code: CodeFailedPrecondition, Message: "order tickets were released"}
	ErrNoEligibleTickets     = &Error{Code: CodeFailedPrecondition, Message: "no eligible tickets"}
	ErrNumberNotSold         = &Error{Code: CodeFailedPrecondition, Message: "number not sold"}
	ErrPaymentGateway        = &Error{Code: CodePaymentGateway, Message: "payment gateway error"}
	ErrConflict              = &Error{Code: CodeAborted, Message: "concurrent modification"}
	ErrInternal              = &Error{Code: CodeInternal, Message: "internal error"}
)

// Errorf wraps a sentinel with a formatted detail message.
func Errorf(sentinel *Error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func HTTPStatus(code ErrorCode) int {
	switch code {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeFailedPrecondition, CodeAborted:
		return http.StatusConflict
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodePaymentGateway:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
