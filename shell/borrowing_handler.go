package shell

import (
	"context"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// Borrower defines the interface needed by the BorrowingHandler, *postgresengine.Engine satisfies it.
type Borrower interface {
	Borrow(ctx context.Context, memberID circulation.MemberID, target circulation.Target) (circulation.Loan, error)
}

// BorrowingHandler borrows a copy for a member and retries lost races when the target is a book.
// A copy target is attempted exactly once: a conflict there means the copy went to someone else.
type BorrowingHandler struct {
	borrower     Borrower
	retryOptions []RetryOption
}

// Option configures a BorrowingHandler.
type Option func(*BorrowingHandler)

// WithRetryOptions sets a custom retry configuration for the handler.
func WithRetryOptions(opts ...RetryOption) Option {
	return func(h *BorrowingHandler) {
		h.retryOptions = opts
	}
}

// NewBorrowingHandler creates a new BorrowingHandler with optional configuration.
func NewBorrowingHandler(borrower Borrower, opts ...Option) BorrowingHandler {
	handler := BorrowingHandler{
		borrower: borrower,
	}

	for _, opt := range opts {
		opt(&handler)
	}

	return handler
}

// Handle borrows target for memberID.
// The returned HandlerResult is populated on success and on failure.
func (h BorrowingHandler) Handle(
	ctx context.Context,
	memberID circulation.MemberID,
	target circulation.Target,
) (circulation.Loan, HandlerResult, error) {
	if !target.IsBook() {
		loan, err := h.borrower.Borrow(ctx, memberID, target)
		result := HandlerResult{Attempts: 1, LastErrorType: getErrorType(err)}

		return loan, result, err
	}

	var loan circulation.Loan

	retryMetrics, err := RetryWithExponentialBackoff(ctx, func(retryCtx context.Context) error {
		var borrowErr error
		loan, borrowErr = h.borrower.Borrow(retryCtx, memberID, target)

		return borrowErr
	}, h.retryOptions...)

	if err != nil {
		return circulation.Loan{}, NewHandlerResult(retryMetrics), err
	}

	return loan, NewHandlerResult(retryMetrics), nil
}
