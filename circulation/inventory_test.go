package circulation_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

func Test_Inventory_IsConsistent(t *testing.T) {
	assert.True(t, circulation.Inventory{Total: 3, Available: 1, CopiesWithoutOpenLoan: 1}.IsConsistent())
	assert.True(t, circulation.Inventory{}.IsConsistent())
	assert.False(t, circulation.Inventory{Total: 3, Available: 2, CopiesWithoutOpenLoan: 1}.IsConsistent())
	assert.False(t, circulation.Inventory{Total: 1, Available: 2, CopiesWithoutOpenLoan: 2}.IsConsistent())
	assert.False(t, circulation.Inventory{Total: 1, Available: -1, CopiesWithoutOpenLoan: -1}.IsConsistent())
}

func Test_ValidateCopyCount(t *testing.T) {
	assert.NoError(t, circulation.ValidateCopyCount(1))
	assert.ErrorIs(t, circulation.ValidateCopyCount(0), circulation.ErrInvalidQuantity)
	assert.ErrorIs(t, circulation.ValidateCopyCount(-3), circulation.ErrInvalidQuantity)
}

func Test_BookDraft_Validate(t *testing.T) {
	valid := circulation.BookDraft{Title: "Dune", ISBN: "978-0441013593", InitialCopies: 2}
	require.NoError(t, valid.Validate())

	noTitle := valid
	noTitle.Title = "  "
	assert.ErrorIs(t, noTitle.Validate(), circulation.ErrEmptyTitle)

	noISBN := valid
	noISBN.ISBN = ""
	assert.ErrorIs(t, noISBN.Validate(), circulation.ErrEmptyISBN)

	negative := valid
	negative.InitialCopies = -1
	assert.ErrorIs(t, negative.Validate(), circulation.ErrInvalidQuantity)

	zero := valid
	zero.InitialCopies = 0
	assert.NoError(t, zero.Validate())
}

func Test_MemberDraft_Validate(t *testing.T) {
	assert.NoError(t, circulation.MemberDraft{Name: "Ada"}.Validate())
	assert.ErrorIs(t, circulation.MemberDraft{Name: ""}.Validate(), circulation.ErrEmptyMemberName)
}

func Test_IsRetryable(t *testing.T) {
	assert.True(t, circulation.IsRetryable(circulation.ErrConflict))
	assert.False(t, circulation.IsRetryable(circulation.ErrNotAvailable))
	assert.False(t, circulation.IsRetryable(circulation.ErrBusy))
	assert.False(t, circulation.IsRetryable(nil))
}

func Test_IsRetryable_When_CounterLeftItsBounds(t *testing.T) {
	drift := errors.Join(circulation.ErrConflict, circulation.ErrInventoryOutOfBounds)

	assert.ErrorIs(t, drift, circulation.ErrConflict)
	assert.False(t, circulation.IsRetryable(drift), "a counter outside [0, total] stays there on the next attempt")
}
