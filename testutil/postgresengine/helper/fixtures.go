package helper

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine"
)

// GivenUniqueID generates a unique UUID for testing.
func GivenUniqueID(t testing.TB) uuid.UUID {
	id, err := uuid.NewV7()
	require.NoError(t, err, "error in arranging test data")

	return id
}

// GivenBookWithCopies adds a book with the given number of copies to the catalog.
func GivenBookWithCopies(t testing.TB, ctx context.Context, engine *postgresengine.Engine, copies circulation.CopyCount) circulation.Book {
	t.Helper()

	suffix := GivenUniqueID(t).String()
	book, err := engine.AddBook(ctx, circulation.BookDraft{
		Title:         "The Pragmatic Programmer " + suffix[len(suffix)-6:],
		ISBN:          fmt.Sprintf("978-0-13-%s", suffix[len(suffix)-7:]),
		Genre:         "Software",
		InitialCopies: copies,
	})
	require.NoError(t, err, "error in arranging test data")

	return book
}

// GivenMember registers a new member.
func GivenMember(t testing.TB, ctx context.Context, engine *postgresengine.Engine, name string) circulation.Member {
	t.Helper()

	member, err := engine.RegisterMember(ctx, circulation.MemberDraft{Name: name, Email: name + "@example.org"})
	require.NoError(t, err, "error in arranging test data")

	return member
}

// GivenCopyIDsOfBook returns the ids of all copies of a book in creation order.
func GivenCopyIDsOfBook(t testing.TB, ctx context.Context, engine *postgresengine.Engine, bookID circulation.BookID) []circulation.CopyID {
	t.Helper()

	entries, err := engine.ReadJournal(
		ctx,
		circulation.BuildJournalFilter().OfEntryTypes(circulation.CopiesAddedEntryType).ForBook(bookID).Finalize(),
	)
	require.NoError(t, err, "error in arranging test data")

	copyIDs := make([]circulation.CopyID, 0)
	for _, entry := range entries {
		var payload circulation.CopiesAdded
		require.NoError(t, entry.DecodePayload(&payload), "error in arranging test data")

		for _, id := range payload.CopyIDs {
			copyIDs = append(copyIDs, uuid.MustParse(id))
		}
	}

	return copyIDs
}

// FakeClock is a settable time source for the engine's WithClock option.
type FakeClock struct {
	now time.Time
	mu  sync.Mutex
}

// NewFakeClock creates a FakeClock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Advance moves the fake time forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}
