package postgresengine

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine/internal/adapters"
)

const (
	defaultLockTimeout = 2 * time.Second

	dialectPostgres = "postgres"

	tableBooks   = "books"
	tableMembers = "members"
	tableCopies  = "book_copies"
	tableLoans   = "loans"
	tableJournal = "circulation_journal"

	aliasBook   = "b"
	aliasCopy   = "c"
	aliasLoan   = "l"
	aliasMember = "m"

	colBookID          = "book_id"
	colTitle           = "title"
	colISBN            = "isbn"
	colGenre           = "genre"
	colTotalCopies     = "total_copies"
	colAvailableCopies = "available_copies"
	colMemberID        = "member_id"
	colName            = "name"
	colEmail           = "email"
	colCopyID          = "copy_id"
	colStatus          = "status"
	colLoanID          = "loan_id"
	colBorrowDate      = "borrow_date"
	colDueDate         = "due_date"
	colReturnDate      = "return_date"
	colWasOverdue      = "was_overdue"
	colSequenceNumber  = "sequence_number"
	colEntryType       = "entry_type"
	colOccurredAt      = "occurred_at"
	colPayload         = "payload"
	colMetadata        = "metadata"

	copyStatusAvailable  = "available"
	copyStatusCheckedOut = "checked_out"

	castJsonb = "?::jsonb"
)

// Engine implements the circulation operations on PostgreSQL.
// It is safe for concurrent use; all shared state lives in the database.
type Engine struct {
	db               adapters.DBAdapter
	logger           circulation.Logger
	contextualLogger circulation.ContextualLogger
	metricsCollector circulation.MetricsCollector
	tracingCollector circulation.TracingCollector
	memberDirectory  circulation.MemberDirectory
	policy           circulation.LoanPolicy
	clock            func() time.Time
	lockTimeout      time.Duration
}

// NewEngineFromPGXPool creates a new Engine using a pgx Pool with optional configuration.
func NewEngineFromPGXPool(db *pgxpool.Pool, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewPGXAdapter(db), options...)
}

// NewEngineFromPGXPoolAndReplica creates a new Engine using a primary and a replica pgx Pool.
// List queries run on the replica when the context carries circulation.WithEventualConsistency.
func NewEngineFromPGXPoolAndReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*Engine, error) {
	if db == nil || replica == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewPGXAdapterWithReplica(db, replica), options...)
}

// NewEngineFromSQLDB creates a new Engine using a sql.DB with optional configuration.
func NewEngineFromSQLDB(db *sql.DB, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewSQLAdapter(db), options...)
}

// NewEngineFromSQLX creates a new Engine using a sqlx.DB with optional configuration.
func NewEngineFromSQLX(db *sqlx.DB, options ...Option) (*Engine, error) {
	if db == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	return newEngine(adapters.NewSQLXAdapter(db), options...)
}

func newEngine(db adapters.DBAdapter, options ...Option) (*Engine, error) {
	e := &Engine{
		db:          db,
		policy:      circulation.DefaultLoanPolicy(),
		clock:       time.Now,
		lockTimeout: defaultLockTimeout,
	}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// now returns the engine's current time in storage precision.
func (e *Engine) now() time.Time {
	return circulation.ToStorageTime(e.clock())
}

// LoanPolicy returns the policy the engine uses for due dates.
func (e *Engine) LoanPolicy() circulation.LoanPolicy {
	return e.policy
}

// Ping checks that the primary database answers.
func (e *Engine) Ping(ctx context.Context) error {
	_, err := e.db.Exec(ctx, "SELECT 1")
	if err != nil {
		return classifyDBError(err)
	}

	return nil
}
