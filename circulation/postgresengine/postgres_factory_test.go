package postgresengine_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine"
	"github.com/AntonStoeckl/library-circulation-go/testutil/postgresengine/config"
	. "github.com/AntonStoeckl/library-circulation-go/testutil/postgresengine/helper"                 //nolint:revive
	. "github.com/AntonStoeckl/library-circulation-go/testutil/postgresengine/helper/postgreswrapper" //nolint:revive
)

type memberDirectoryStub struct {
	known map[circulation.MemberID]bool
	err   error
}

func (s memberDirectoryStub) MemberExists(_ context.Context, memberID circulation.MemberID) (bool, error) {
	return s.known[memberID], s.err
}

func Test_Factory_RejectsNilConnections(t *testing.T) {
	_, pgxErr := postgresengine.NewEngineFromPGXPool(nil)
	_, replicaErr := postgresengine.NewEngineFromPGXPoolAndReplica(nil, nil)
	_, sqlErr := postgresengine.NewEngineFromSQLDB((*sql.DB)(nil))
	_, sqlxErr := postgresengine.NewEngineFromSQLX((*sqlx.DB)(nil))

	assert.ErrorIs(t, pgxErr, circulation.ErrNilDatabaseConnection)
	assert.ErrorIs(t, replicaErr, circulation.ErrNilDatabaseConnection)
	assert.ErrorIs(t, sqlErr, circulation.ErrNilDatabaseConnection)
	assert.ErrorIs(t, sqlxErr, circulation.ErrNilDatabaseConnection)
}

func Test_Factory_RejectsInvalidOptions(t *testing.T) {
	// setup
	connPool, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolSingleConfig())
	require.NoError(t, err, "error connecting to DB pool in test setup")
	defer connPool.Close()

	testCases := []struct {
		description string
		option      postgresengine.Option
		expected    error
	}{
		{"zero loan period", postgresengine.WithLoanPeriod(0), circulation.ErrInvalidLoanPeriod},
		{"negative loan period", postgresengine.WithLoanPeriod(-time.Hour), circulation.ErrInvalidLoanPeriod},
		{"nil clock", postgresengine.WithClock(nil), circulation.ErrNilClock},
		{"negative lock timeout", postgresengine.WithLockTimeout(-time.Second), circulation.ErrInvalidLockTimeout},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			// act
			engine, createErr := postgresengine.NewEngineFromPGXPool(connPool, tc.option)

			// assert
			assert.ErrorIs(t, createErr, tc.expected)
			assert.Nil(t, engine)
		})
	}
}

func Test_Generic_CreateWrapper_ShouldPanic_WithUnsupportedAdapterType(t *testing.T) {
	// Save the original env var
	originalAdapterType := os.Getenv("ADAPTER_TYPE")
	defer func() {
		if originalAdapterType == "" {
			err := os.Unsetenv("ADAPTER_TYPE")
			assert.NoError(t, err)
		} else {
			err := os.Setenv("ADAPTER_TYPE", originalAdapterType)
			assert.NoError(t, err)
		}
	}()

	// Set an unsupported adapter type
	err := os.Setenv("ADAPTER_TYPE", "unsupported")
	assert.NoError(t, err)

	assert.Panics(t, func() {
		CreateWrapperWithTestConfig(t)
	})
}

func Test_Generic_Ping_And_ApplySchema_AreIdempotent(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wrapper := CreateWrapperWithTestConfig(t)
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// act
	pingErr := engine.Ping(ctxWithTimeout)
	schemaErr := engine.ApplySchema(ctxWithTimeout)

	// assert
	assert.NoError(t, pingErr)
	assert.NoError(t, schemaErr)
	assert.Contains(t, postgresengine.Schema(), "loans_one_open_loan_per_copy")
}

func Test_WithMemberDirectory_IsAskedBeforeBorrowing(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// arrange
	registered := GivenUniqueID(t)
	lookupFailure := errors.New("directory unreachable")

	testCases := []struct {
		description string
		directory   memberDirectoryStub
		memberID    circulation.MemberID
		expected    error
	}{
		{"unknown to the directory", memberDirectoryStub{known: map[circulation.MemberID]bool{}}, registered, circulation.ErrMemberNotFound},
		{"directory fails", memberDirectoryStub{err: lookupFailure}, registered, lookupFailure},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			wrapper := CreateWrapperWithTestConfig(t, postgresengine.WithMemberDirectory(tc.directory))
			defer wrapper.Close()
			engine := wrapper.GetEngine()
			CleanUp(t, wrapper)
			book := GivenBookWithCopies(t, ctxWithTimeout, engine, 1)

			// act
			_, err := engine.Borrow(ctxWithTimeout, tc.memberID, circulation.BookTarget(book.BookID))

			// assert
			assert.ErrorIs(t, err, tc.expected)
			assert.Equal(t, 0, CountRows(t, wrapper, "SELECT count(*) FROM loans"))
		})
	}
}

func Test_WithMemberDirectory_BorrowsForMemberOnlyTheDirectoryKnows(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	memberID := GivenUniqueID(t)
	directory := memberDirectoryStub{known: map[circulation.MemberID]bool{memberID: true}}
	wrapper := CreateWrapperWithTestConfig(t, postgresengine.WithMemberDirectory(directory))
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWithCopies(t, ctxWithTimeout, engine, 2)

	// act
	first, firstErr := engine.Borrow(ctxWithTimeout, memberID, circulation.BookTarget(book.BookID))
	second, secondErr := engine.Borrow(ctxWithTimeout, memberID, circulation.BookTarget(book.BookID))

	// assert
	require.NoError(t, firstErr)
	require.NoError(t, secondErr)
	assert.Equal(t, memberID, first.MemberID)
	assert.Equal(t, memberID, second.MemberID)
	assert.Equal(t, 1, CountRows(t, wrapper, "SELECT count(*) FROM members WHERE member_id = $1", memberID.String()))
	assert.Equal(t, 2, CountRows(t, wrapper, "SELECT count(*) FROM loans WHERE member_id = $1", memberID.String()))

	openLoans, listErr := engine.ListOpenLoansForMember(ctxWithTimeout, memberID)
	require.NoError(t, listErr)
	assert.Len(t, openLoans, 2)

	_, returnErr := engine.ReturnLoan(ctxWithTimeout, first.LoanID)
	assert.NoError(t, returnErr)
}

func Test_WithMemberDirectory_RejectedBorrow_LeavesNoMemberRecord(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	memberID := GivenUniqueID(t)
	directory := memberDirectoryStub{known: map[circulation.MemberID]bool{memberID: true}}
	wrapper := CreateWrapperWithTestConfig(t, postgresengine.WithMemberDirectory(directory))
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWithCopies(t, ctxWithTimeout, engine, 0)

	// act
	_, err := engine.Borrow(ctxWithTimeout, memberID, circulation.BookTarget(book.BookID))

	// assert
	assert.ErrorIs(t, err, circulation.ErrNotAvailable)
	assert.Equal(t, 0, CountRows(t, wrapper, "SELECT count(*) FROM members WHERE member_id = $1", memberID.String()))
}

func Test_WithMemberDirectory_EngineAsDirectory(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	directoryWrapper := CreateWrapperWithTestConfig(t)
	defer directoryWrapper.Close()
	directory := directoryWrapper.GetEngine()

	wrapper := CreateWrapperWithTestConfig(t, postgresengine.WithMemberDirectory(directory))
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWithCopies(t, ctxWithTimeout, engine, 1)
	member := GivenMember(t, ctxWithTimeout, engine, "reader")

	// act
	loan, err := engine.Borrow(ctxWithTimeout, member.MemberID, circulation.BookTarget(book.BookID))

	// assert
	require.NoError(t, err)
	assert.Equal(t, member.MemberID, loan.MemberID)
}

func Test_Consistency_EventualReads_UseTheReplicaPool(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// primary and "replica" point at the same database, which keeps the reads deterministic
	primary, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolSingleConfig())
	require.NoError(t, err, "error connecting to DB pool in test setup")
	defer primary.Close()

	replica, err := pgxpool.NewWithConfig(context.Background(), config.PostgresPGXPoolSingleConfig())
	require.NoError(t, err, "error connecting to DB pool in test setup")
	defer replica.Close()

	tracingSpy := NewTracingCollectorSpy(true)
	engine, err := postgresengine.NewEngineFromPGXPoolAndReplica(primary, replica, postgresengine.WithTracing(tracingSpy))
	require.NoError(t, err)
	require.NoError(t, engine.ApplySchema(ctxWithTimeout))

	// arrange
	_, err = primary.Exec(ctxWithTimeout, "TRUNCATE TABLE circulation_journal, loans, book_copies, books, members")
	require.NoError(t, err, "error in arranging test data")
	book := GivenBookWithCopies(t, ctxWithTimeout, engine, 1)
	member := GivenMember(t, ctxWithTimeout, engine, "reader")
	loan, err := engine.Borrow(ctxWithTimeout, member.MemberID, circulation.BookTarget(book.BookID))
	require.NoError(t, err, "error in arranging test data")

	// act
	eventual, eventualErr := engine.ListOpenLoans(circulation.WithEventualConsistency(ctxWithTimeout))
	strong, strongErr := engine.ListOpenLoans(circulation.WithStrongConsistency(ctxWithTimeout))

	// assert
	require.NoError(t, eventualErr)
	require.NoError(t, strongErr)
	assert.Equal(t, []circulation.Loan{loan}, eventual)
	assert.Equal(t, eventual, strong)
	var consistencies []string
	for _, record := range tracingSpy.GetSpanRecords() {
		if record.Name == "circulation.list_open_loans" {
			consistencies = append(consistencies, record.EndAttributes["consistency"])
		}
	}
	assert.Equal(t, []string{"eventual", "strong"}, consistencies)
}
