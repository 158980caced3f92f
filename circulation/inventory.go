package circulation

import (
	"context"
	"errors"
	"strings"
)

// Book is a catalog entry with its copy counters.
type Book struct {
	BookID          BookID
	Title           string
	ISBN            string
	Genre           string
	TotalCopies     CopyCount
	AvailableCopies CopyCount
}

// BookDraft carries the input for adding a book to the catalog.
type BookDraft struct {
	Title         string
	ISBN          string
	Genre         string
	InitialCopies CopyCount
}

// Validate checks the draft before anything is written.
func (d BookDraft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return ErrEmptyTitle
	}

	if strings.TrimSpace(d.ISBN) == "" {
		return ErrEmptyISBN
	}

	if d.InitialCopies < 0 {
		return errors.Join(ErrInvalidQuantity, errors.New("initial copies must not be negative"))
	}

	return nil
}

// Member is a registered library member.
type Member struct {
	MemberID MemberID
	Name     string
	Email    string
}

// MemberDraft carries the input for registering a member.
type MemberDraft struct {
	Name  string
	Email string
}

// Validate checks the draft before anything is written.
func (d MemberDraft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrEmptyMemberName
	}

	return nil
}

// MemberDirectory answers whether a member exists.
// An engine configured with one asks it before opening a transaction.
type MemberDirectory interface {
	MemberExists(ctx context.Context, memberID MemberID) (bool, error)
}

// Inventory is the counter state of one book plus the number of copies without an open loan.
// In a consistent store Available equals CopiesWithoutOpenLoan.
type Inventory struct {
	BookID                BookID
	Total                 CopyCount
	Available             CopyCount
	CopiesWithoutOpenLoan CopyCount
}

// IsConsistent reports whether the counters satisfy 0 <= available <= total and match the loan state.
func (i Inventory) IsConsistent() bool {
	return i.Available >= 0 &&
		i.Available <= i.Total &&
		i.Available == i.CopiesWithoutOpenLoan
}

// AddCopiesResult reports the outcome of adding copies to a book.
type AddCopiesResult struct {
	BookID       BookID
	AddedCount   CopyCount
	NewTotal     CopyCount
	NewAvailable CopyCount
	CopyIDs      []CopyID
}

// ValidateCopyCount checks a requested number of copies to add.
func ValidateCopyCount(count CopyCount) error {
	if count <= 0 {
		return ErrInvalidQuantity
	}

	return nil
}
