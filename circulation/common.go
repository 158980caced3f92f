package circulation

import (
	"errors"

	"github.com/google/uuid"
)

// Error kinds. A rejected circulation operation matches one of them via errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrNotAvailable    = errors.New("no copy available")
	ErrAlreadyReturned = errors.New("loan already returned")
	ErrConflict        = errors.New("concurrency conflict")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrBusy            = errors.New("storage busy")
)

// Specific causes, joined with one of the error kinds above.
var (
	ErrBookNotFound         = errors.New("book not found")
	ErrCopyNotFound         = errors.New("book copy not found")
	ErrMemberNotFound       = errors.New("member not found")
	ErrLoanNotFound         = errors.New("loan not found")
	ErrInventoryOutOfBounds = errors.New("available copies would leave [0, total]")
)

// Infrastructure errors.
var (
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")
	ErrInvalidLoanPeriod     = errors.New("loan period must be positive")
	ErrInvalidLockTimeout    = errors.New("lock timeout must not be negative")
	ErrNilClock              = errors.New("clock must not be nil")
	ErrInvalidTarget         = errors.New("borrow target must name a copy or a book")
	ErrEmptyTitle            = errors.New("book title must not be empty")
	ErrEmptyISBN             = errors.New("book isbn must not be empty")
	ErrEmptyMemberName       = errors.New("member name must not be empty")
	ErrBuildingQueryFailed   = errors.New("building query failed")
	ErrQueryFailed           = errors.New("query failed")
	ErrScanningDBRowFailed   = errors.New("scanning db row failed")
	ErrBeginTxFailed         = errors.New("beginning transaction failed")
	ErrCommitFailed          = errors.New("committing transaction failed")
	ErrApplyingSchemaFailed  = errors.New("applying schema failed")
)

// Instead of implementing full value objects, plain aliases for uuid.UUID are used for identities.
type (
	BookID    = uuid.UUID
	CopyID    = uuid.UUID
	MemberID  = uuid.UUID
	LoanID    = uuid.UUID
	CopyCount = int
)

// NewID returns a new time-ordered identity.
func NewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// IsRetryable reports whether an operation failing with err may succeed when invoked again.
// Only a lost race (ErrConflict) qualifies. A counter outside its bounds is a conflict too,
// but it does not go away by itself.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) && !errors.Is(err, ErrInventoryOutOfBounds)
}
