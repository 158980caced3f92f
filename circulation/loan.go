package circulation

import (
	"time"
)

// DefaultLoanPeriod is the time between borrowing and the due date.
const DefaultLoanPeriod = 14 * 24 * time.Hour

// Loan is an open loan: a copy lent to a member.
type Loan struct {
	LoanID     LoanID
	CopyID     CopyID
	BookID     BookID
	MemberID   MemberID
	MemberName string
	Title      string
	ISBN       string
	BorrowDate time.Time
	DueDate    time.Time
}

// IsOverdueAt reports whether the loan's due date lies strictly before now.
func (l Loan) IsOverdueAt(now time.Time) bool {
	return l.DueDate.Before(now)
}

// ClosedLoan is a returned loan together with the overdue verdict taken at return time.
type ClosedLoan struct {
	Loan
	ReturnDate time.Time
	WasOverdue bool
}

// Close turns the open loan into a ClosedLoan returned at returnDate.
func (l Loan) Close(returnDate time.Time) ClosedLoan {
	return ClosedLoan{
		Loan:       l,
		ReturnDate: returnDate,
		WasOverdue: WasOverdue(l.DueDate, returnDate),
	}
}

// WasOverdue reports whether a loan due at dueDate and returned at returnDate was returned late.
func WasOverdue(dueDate, returnDate time.Time) bool {
	return returnDate.After(dueDate)
}

// LoanPolicy computes due dates.
type LoanPolicy struct {
	Period time.Duration
}

// DefaultLoanPolicy returns the 14-day policy.
func DefaultLoanPolicy() LoanPolicy {
	return LoanPolicy{Period: DefaultLoanPeriod}
}

// DueDate returns the due date of a loan borrowed at borrowDate.
func (p LoanPolicy) DueDate(borrowDate time.Time) time.Time {
	return borrowDate.Add(p.Period)
}

// ToStorageTime normalizes t to UTC with microsecond precision, which is what PostgreSQL stores.
func ToStorageTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
