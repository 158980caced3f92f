package circulation

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Payload keys that a JournalFilter can match on.
const (
	JournalKeyBookID   = "BookID"
	JournalKeyMemberID = "MemberID"
	JournalKeyLoanID   = "LoanID"
)

// JournalPredicate matches a top-level string field of an entry payload.
type JournalPredicate struct {
	key string
	val string
}

func (p JournalPredicate) Key() string {
	return p.key
}

func (p JournalPredicate) Val() string {
	return p.val
}

// JournalFilter selects journal entries. All set criteria must match.
// Build it with BuildJournalFilter.
type JournalFilter struct {
	entryTypes    []string
	predicates    []JournalPredicate
	occurredFrom  time.Time
	occurredUntil time.Time
}

func (f JournalFilter) EntryTypes() []string {
	return f.entryTypes
}

func (f JournalFilter) Predicates() []JournalPredicate {
	return f.predicates
}

func (f JournalFilter) OccurredFrom() time.Time {
	return f.occurredFrom
}

func (f JournalFilter) OccurredUntil() time.Time {
	return f.occurredUntil
}

// JournalFilterBuilder builds a JournalFilter.
//
//	filter := circulation.BuildJournalFilter().
//		OfEntryTypes(circulation.LoanOpenedEntryType, circulation.LoanClosedEntryType).
//		ForBook(bookID).
//		Finalize()
type JournalFilterBuilder struct {
	filter JournalFilter
}

// BuildJournalFilter starts an empty filter, which matches every entry.
func BuildJournalFilter() *JournalFilterBuilder {
	return &JournalFilterBuilder{}
}

// OfEntryTypes restricts the filter to any of the given entry types. Duplicates and empty types are dropped.
func (b *JournalFilterBuilder) OfEntryTypes(entryTypes ...string) *JournalFilterBuilder {
	for _, entryType := range entryTypes {
		if entryType == "" || slices.Contains(b.filter.entryTypes, entryType) {
			continue
		}

		b.filter.entryTypes = append(b.filter.entryTypes, entryType)
	}

	return b
}

// ForBook restricts the filter to entries concerning the book.
func (b *JournalFilterBuilder) ForBook(bookID BookID) *JournalFilterBuilder {
	return b.withPredicate(JournalKeyBookID, bookID)
}

// ForMember restricts the filter to entries concerning the member.
func (b *JournalFilterBuilder) ForMember(memberID MemberID) *JournalFilterBuilder {
	return b.withPredicate(JournalKeyMemberID, memberID)
}

// ForLoan restricts the filter to entries concerning the loan.
func (b *JournalFilterBuilder) ForLoan(loanID LoanID) *JournalFilterBuilder {
	return b.withPredicate(JournalKeyLoanID, loanID)
}

// OccurredFrom sets the inclusive lower time bound.
func (b *JournalFilterBuilder) OccurredFrom(from time.Time) *JournalFilterBuilder {
	b.filter.occurredFrom = from

	return b
}

// OccurredUntil sets the inclusive upper time bound.
func (b *JournalFilterBuilder) OccurredUntil(until time.Time) *JournalFilterBuilder {
	b.filter.occurredUntil = until

	return b
}

// Finalize returns the built filter.
func (b *JournalFilterBuilder) Finalize() JournalFilter {
	return b.filter
}

func (b *JournalFilterBuilder) withPredicate(key string, id uuid.UUID) *JournalFilterBuilder {
	predicate := JournalPredicate{key: key, val: id.String()}
	if !slices.Contains(b.filter.predicates, predicate) {
		b.filter.predicates = append(b.filter.predicates, predicate)
	}

	return b
}
