package postgresengine

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine/internal/adapters"
)

// The loan store: open and closed loans, keyed by copy and member.

// ListOpenLoans returns all open loans, most recently borrowed first.
func (e *Engine) ListOpenLoans(ctx context.Context) ([]circulation.Loan, error) {
	observer, ctx := e.observe(ctx, operationListOpenLoans, nil)

	loans, err := e.listOpenLoans(ctx, nil, goqu.I("l."+colBorrowDate).Desc())
	if err != nil {
		return nil, observer.fail(err)
	}

	observer.succeedWithRows(len(loans))

	return loans, nil
}

// ListOpenLoansForMember returns the open loans of one member, most recently borrowed first.
func (e *Engine) ListOpenLoansForMember(ctx context.Context, memberID circulation.MemberID) ([]circulation.Loan, error) {
	observer, ctx := e.observe(ctx, operationListOpenLoans, map[string]string{spanAttrMemberID: memberID.String()})

	loans, err := e.listOpenLoans(
		ctx,
		goqu.I("l."+colMemberID).Eq(memberID.String()),
		goqu.I("l."+colBorrowDate).Desc(),
	)
	if err != nil {
		return nil, observer.fail(err)
	}

	observer.succeedWithRows(len(loans))

	return loans, nil
}

// ListOverdueLoans returns the open loans whose due date lies before now, earliest due date first.
func (e *Engine) ListOverdueLoans(ctx context.Context) ([]circulation.Loan, error) {
	observer, ctx := e.observe(ctx, operationListOverdue, nil)

	loans, err := e.listOpenLoans(
		ctx,
		goqu.I("l."+colDueDate).Lt(e.now()),
		goqu.I("l."+colDueDate).Asc(),
	)
	if err != nil {
		return nil, observer.fail(err)
	}

	observer.succeedWithRows(len(loans))

	return loans, nil
}

// ListHistory returns all closed loans, most recently returned first.
func (e *Engine) ListHistory(ctx context.Context) ([]circulation.ClosedLoan, error) {
	observer, ctx := e.observe(ctx, operationListHistory, nil)

	loans, err := e.listClosedLoans(ctx, nil)
	if err != nil {
		return nil, observer.fail(err)
	}

	observer.succeedWithRows(len(loans))

	return loans, nil
}

// ListHistoryForMember returns the closed loans of one member, most recently returned first.
func (e *Engine) ListHistoryForMember(ctx context.Context, memberID circulation.MemberID) ([]circulation.ClosedLoan, error) {
	observer, ctx := e.observe(ctx, operationListHistory, map[string]string{spanAttrMemberID: memberID.String()})

	loans, err := e.listClosedLoans(ctx, goqu.I("l."+colMemberID).Eq(memberID.String()))
	if err != nil {
		return nil, observer.fail(err)
	}

	observer.succeedWithRows(len(loans))

	return loans, nil
}

func loansWithBooksAndMembers() *goqu.SelectDataset {
	return builder().
		From(goqu.T(tableLoans).As(aliasLoan)).
		Join(
			goqu.T(tableCopies).As(aliasCopy),
			goqu.On(goqu.I("c."+colCopyID).Eq(goqu.I("l."+colCopyID))),
		).
		Join(
			goqu.T(tableBooks).As(aliasBook),
			goqu.On(goqu.I("b."+colBookID).Eq(goqu.I("c."+colBookID))),
		).
		Join(
			goqu.T(tableMembers).As(aliasMember),
			goqu.On(goqu.I("m."+colMemberID).Eq(goqu.I("l."+colMemberID))),
		)
}

func loanColumns() []any {
	return []any{
		goqu.I("l." + colLoanID),
		goqu.I("l." + colCopyID),
		goqu.I("c." + colBookID),
		goqu.I("l." + colMemberID),
		goqu.I("m." + colName),
		goqu.I("b." + colTitle),
		goqu.I("b." + colISBN),
		goqu.I("l." + colBorrowDate),
		goqu.I("l." + colDueDate),
	}
}

func (e *Engine) listOpenLoans(ctx context.Context, condition exp.Expression, order exp.OrderedExpression) ([]circulation.Loan, error) {
	conditions := []exp.Expression{goqu.I("l." + colReturnDate).IsNull()}
	if condition != nil {
		conditions = append(conditions, condition)
	}

	selectStmt := loansWithBooksAndMembers().
		Select(loanColumns()...).
		Where(conditions...).
		Order(order, goqu.I("l."+colLoanID).Asc())

	sqlQuery, buildErr := e.toSQL(ctx, selectStmt, actionListLoans)
	if buildErr != nil {
		return nil, buildErr
	}

	loans := make([]circulation.Loan, 0)
	_, queryErr := e.queryRows(ctx, e.db, actionListLoans, sqlQuery, func(rows adapters.DBRows) error {
		loan, scanErr := scanLoan(rows)
		if scanErr != nil {
			return scanErr
		}

		loans = append(loans, loan)

		return nil
	})
	if queryErr != nil {
		return nil, queryErr
	}

	return loans, nil
}

func (e *Engine) listClosedLoans(ctx context.Context, condition exp.Expression) ([]circulation.ClosedLoan, error) {
	conditions := []exp.Expression{goqu.I("l." + colReturnDate).IsNotNull()}
	if condition != nil {
		conditions = append(conditions, condition)
	}

	columns := append(loanColumns(), goqu.I("l."+colReturnDate), goqu.I("l."+colWasOverdue))

	selectStmt := loansWithBooksAndMembers().
		Select(columns...).
		Where(conditions...).
		Order(goqu.I("l."+colReturnDate).Desc(), goqu.I("l."+colLoanID).Asc())

	sqlQuery, buildErr := e.toSQL(ctx, selectStmt, actionListLoans)
	if buildErr != nil {
		return nil, buildErr
	}

	loans := make([]circulation.ClosedLoan, 0)
	_, queryErr := e.queryRows(ctx, e.db, actionListLoans, sqlQuery, func(rows adapters.DBRows) error {
		loan, scanErr := scanClosedLoan(rows)
		if scanErr != nil {
			return scanErr
		}

		loans = append(loans, loan)

		return nil
	})
	if queryErr != nil {
		return nil, queryErr
	}

	return loans, nil
}

func scanLoan(rows adapters.DBRows) (circulation.Loan, error) {
	loan := circulation.Loan{}

	err := rows.Scan(
		&loan.LoanID,
		&loan.CopyID,
		&loan.BookID,
		&loan.MemberID,
		&loan.MemberName,
		&loan.Title,
		&loan.ISBN,
		&loan.BorrowDate,
		&loan.DueDate,
	)
	if err != nil {
		return circulation.Loan{}, err
	}

	loan.BorrowDate = circulation.ToStorageTime(loan.BorrowDate)
	loan.DueDate = circulation.ToStorageTime(loan.DueDate)

	return loan, nil
}

func scanClosedLoan(rows adapters.DBRows) (circulation.ClosedLoan, error) {
	loan := circulation.Loan{}
	var returnDate sql.NullTime
	var wasOverdue sql.NullBool

	err := rows.Scan(
		&loan.LoanID,
		&loan.CopyID,
		&loan.BookID,
		&loan.MemberID,
		&loan.MemberName,
		&loan.Title,
		&loan.ISBN,
		&loan.BorrowDate,
		&loan.DueDate,
		&returnDate,
		&wasOverdue,
	)
	if err != nil {
		return circulation.ClosedLoan{}, err
	}

	loan.BorrowDate = circulation.ToStorageTime(loan.BorrowDate)
	loan.DueDate = circulation.ToStorageTime(loan.DueDate)

	return circulation.ClosedLoan{
		Loan:       loan,
		ReturnDate: circulation.ToStorageTime(returnDate.Time),
		WasOverdue: wasOverdue.Bool,
	}, nil
}

// openLoan inserts an open loan. A second open loan for the same copy violates
// loans_one_open_loan_per_copy and surfaces as circulation.ErrConflict.
func (e *Engine) openLoan(ctx context.Context, tx adapters.DBTx, loan circulation.Loan) error {
	insertStmt := builder().
		Insert(tableLoans).
		Rows(goqu.Record{
			colLoanID:     loan.LoanID.String(),
			colCopyID:     loan.CopyID.String(),
			colMemberID:   loan.MemberID.String(),
			colBorrowDate: loan.BorrowDate,
			colDueDate:    loan.DueDate,
		})

	sqlQuery, buildErr := e.toSQL(ctx, insertStmt, actionOpenLoan)
	if buildErr != nil {
		return buildErr
	}

	_, execErr := e.exec(ctx, tx, actionOpenLoan, sqlQuery)

	return execErr
}

// closeLoan sets the return date of an open loan and stores whether it was overdue.
// The return date never lies before the borrow date. found is false if no open loan has this id.
func (e *Engine) closeLoan(
	ctx context.Context,
	tx adapters.DBTx,
	loanID circulation.LoanID,
	now time.Time,
) (loan circulation.Loan, returnDate time.Time, found bool, err error) {

	effectiveReturnDate := goqu.L("GREATEST("+colBorrowDate+", ?::timestamptz)", now)

	updateStmt := builder().
		Update(tableLoans).
		Set(goqu.Record{
			colReturnDate: effectiveReturnDate,
			colWasOverdue: goqu.L("GREATEST("+colBorrowDate+", ?::timestamptz) > "+colDueDate, now),
		}).
		Where(
			goqu.C(colLoanID).Eq(loanID.String()),
			goqu.C(colReturnDate).IsNull(),
		).
		Returning(colLoanID, colCopyID, colMemberID, colBorrowDate, colDueDate, colReturnDate)

	sqlQuery, buildErr := e.toSQL(ctx, updateStmt, actionCloseLoan)
	if buildErr != nil {
		return circulation.Loan{}, time.Time{}, false, buildErr
	}

	count, queryErr := e.queryRows(ctx, tx, actionCloseLoan, sqlQuery, func(rows adapters.DBRows) error {
		return rows.Scan(
			&loan.LoanID,
			&loan.CopyID,
			&loan.MemberID,
			&loan.BorrowDate,
			&loan.DueDate,
			&returnDate,
		)
	})
	if queryErr != nil {
		return circulation.Loan{}, time.Time{}, false, queryErr
	}

	loan.BorrowDate = circulation.ToStorageTime(loan.BorrowDate)
	loan.DueDate = circulation.ToStorageTime(loan.DueDate)

	return loan, circulation.ToStorageTime(returnDate), count > 0, nil
}

// loanExists reports whether a loan with this id exists, open or closed.
func (e *Engine) loanExists(ctx context.Context, tx adapters.DBTx, loanID circulation.LoanID) (bool, error) {
	return e.rowExists(ctx, tx, actionLoanExists, tableLoans, goqu.C(colLoanID).Eq(loanID.String()))
}

// ensureMemberRecord inserts a nameless member row for an id a circulation.MemberDirectory vouched for,
// so loans can reference it. An existing row stays untouched.
func (e *Engine) ensureMemberRecord(ctx context.Context, tx adapters.DBTx, memberID circulation.MemberID) error {
	insertStmt := builder().
		Insert(tableMembers).
		Rows(goqu.Record{
			colMemberID: memberID.String(),
			colName:     "",
		}).
		OnConflict(goqu.DoNothing())

	sqlQuery, buildErr := e.toSQL(ctx, insertStmt, actionEnsureMember)
	if buildErr != nil {
		return buildErr
	}

	_, execErr := e.exec(ctx, tx, actionEnsureMember, sqlQuery)

	return execErr
}

// loadMemberName returns the name of a member. found is false for an unknown id.
func (e *Engine) loadMemberName(
	ctx context.Context,
	db executor,
	memberID circulation.MemberID,
) (name string, found bool, err error) {

	selectStmt := builder().
		From(tableMembers).
		Select(colName).
		Where(goqu.C(colMemberID).Eq(memberID.String()))

	sqlQuery, buildErr := e.toSQL(ctx, selectStmt, actionLoadMember)
	if buildErr != nil {
		return "", false, buildErr
	}

	count, queryErr := e.queryRows(ctx, db, actionLoadMember, sqlQuery, func(rows adapters.DBRows) error {
		return rows.Scan(&name)
	})
	if queryErr != nil {
		return "", false, queryErr
	}

	return name, count > 0, nil
}

// memberExists reports whether a member with this id is registered.
func (e *Engine) memberExists(ctx context.Context, db executor, memberID circulation.MemberID) (bool, error) {
	return e.rowExists(ctx, db, actionMemberExists, tableMembers, goqu.C(colMemberID).Eq(memberID.String()))
}

func (e *Engine) rowExists(ctx context.Context, db executor, action string, table string, condition exp.Expression) (bool, error) {
	selectStmt := builder().
		From(table).
		Select(goqu.L("1")).
		Where(condition).
		Limit(1)

	sqlQuery, buildErr := e.toSQL(ctx, selectStmt, action)
	if buildErr != nil {
		return false, buildErr
	}

	var one int64
	count, queryErr := e.queryRows(ctx, db, action, sqlQuery, func(rows adapters.DBRows) error {
		return rows.Scan(&one)
	})
	if queryErr != nil {
		return false, queryErr
	}

	return count > 0, nil
}
