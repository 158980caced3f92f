package postgresengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine"
	. "github.com/AntonStoeckl/library-circulation-go/testutil/postgresengine/helper"                 //nolint:revive
	. "github.com/AntonStoeckl/library-circulation-go/testutil/postgresengine/helper/postgreswrapper" //nolint:revive
)

func Test_Journal_RecordsEveryTransition_InOrder(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fakeClock := NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	wrapper := CreateWrapperWithTestConfig(t, postgresengine.WithClock(fakeClock.Now))
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWithCopies(t, ctxWithTimeout, engine, 1)
	otherBook := GivenBookWithCopies(t, ctxWithTimeout, engine, 1)
	member := GivenMember(t, ctxWithTimeout, engine, "reader")
	fakeClock.Advance(time.Minute)
	loan, err := engine.Borrow(ctxWithTimeout, member.MemberID, circulation.BookTarget(book.BookID))
	require.NoError(t, err, "error in arranging test data")
	fakeClock.Advance(time.Minute)
	closed, err := engine.ReturnLoan(ctxWithTimeout, loan.LoanID)
	require.NoError(t, err, "error in arranging test data")

	// act
	forBook, bookErr := engine.ReadJournal(ctxWithTimeout, circulation.BuildJournalFilter().ForBook(book.BookID).Finalize())
	forLoan, loanErr := engine.ReadJournal(
		ctxWithTimeout,
		circulation.BuildJournalFilter().OfEntryTypes(circulation.LoanClosedEntryType).ForLoan(loan.LoanID).Finalize(),
	)
	forOtherBook, otherErr := engine.ReadJournal(ctxWithTimeout, circulation.BuildJournalFilter().ForBook(otherBook.BookID).Finalize())

	// assert
	require.NoError(t, bookErr)
	require.NoError(t, loanErr)
	require.NoError(t, otherErr)

	require.Len(t, forBook, 3)
	assert.Equal(t, circulation.CopiesAddedEntryType, forBook[0].EntryType)
	assert.Equal(t, circulation.LoanOpenedEntryType, forBook[1].EntryType)
	assert.Equal(t, circulation.LoanClosedEntryType, forBook[2].EntryType)
	assert.Less(t, forBook[0].SequenceNumber, forBook[1].SequenceNumber)
	assert.Less(t, forBook[1].SequenceNumber, forBook[2].SequenceNumber)
	assert.Equal(t, loan.BorrowDate, forBook[1].OccurredAt)
	assert.Equal(t, closed.ReturnDate, forBook[2].OccurredAt)

	require.Len(t, forLoan, 1)
	var payload circulation.LoanClosed
	require.NoError(t, forLoan[0].DecodePayload(&payload))
	assert.Equal(t, loan.LoanID.String(), payload.LoanID)
	assert.Equal(t, loan.CopyID.String(), payload.CopyID)
	assert.Equal(t, member.MemberID.String(), payload.MemberID)
	assert.Equal(t, closed.ReturnDate, payload.ReturnDate.UTC())

	metadata, err := forLoan[0].DecodeMetadata()
	require.NoError(t, err)
	assert.Equal(t, loan.LoanID.String(), metadata.CorrelationID)
	assert.NotEmpty(t, metadata.MessageID)

	require.Len(t, forOtherBook, 1)
	assert.Equal(t, circulation.CopiesAddedEntryType, forOtherBook[0].EntryType)
}

func Test_Journal_FiltersByOccurredAtRange(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fakeClock := NewFakeClock(start)
	wrapper := CreateWrapperWithTestConfig(t, postgresengine.WithClock(fakeClock.Now))
	defer wrapper.Close()
	engine := wrapper.GetEngine()

	// arrange
	CleanUp(t, wrapper)
	book := GivenBookWithCopies(t, ctxWithTimeout, engine, 1)
	for i := 0; i < 3; i++ {
		fakeClock.Advance(time.Hour)
		_, err := engine.AddCopies(ctxWithTimeout, book.BookID, 1)
		require.NoError(t, err, "error in arranging test data")
	}

	// act
	entries, err := engine.ReadJournal(
		ctxWithTimeout,
		circulation.BuildJournalFilter().
			OfEntryTypes(circulation.CopiesAddedEntryType).
			ForBook(book.BookID).
			OccurredFrom(start.Add(90*time.Minute)).
			OccurredUntil(start.Add(3*time.Hour)).
			Finalize(),
	)

	// assert
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, start.Add(2*time.Hour), entries[0].OccurredAt)
	assert.Equal(t, start.Add(3*time.Hour), entries[1].OccurredAt)
}
