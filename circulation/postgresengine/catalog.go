package postgresengine

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine/internal/adapters"
)

// Catalog and member support. These are the lookups and the fixture writes the circulation core needs;
// general catalog CRUD belongs to other services.

// AddBook creates a book together with its initial copies: total and available copies both equal draft.InitialCopies.
// A duplicate ISBN yields circulation.ErrConflict.
func (e *Engine) AddBook(ctx context.Context, draft circulation.BookDraft) (circulation.Book, error) {
	observer, ctx := e.observe(ctx, operationAddBook, map[string]string{
		spanAttrCopyCount: fmt.Sprintf("%d", draft.InitialCopies),
	})

	if err := draft.Validate(); err != nil {
		return circulation.Book{}, observer.fail(err)
	}

	book := circulation.Book{
		BookID: circulation.NewID(),
		Title:  draft.Title,
		ISBN:   draft.ISBN,
		Genre:  draft.Genre,
	}

	err := e.inTransaction(ctx, operationAddBook, func(ctx context.Context, tx adapters.DBTx) error {
		insertStmt := builder().
			Insert(tableBooks).
			Rows(goqu.Record{
				colBookID:          book.BookID.String(),
				colTitle:           book.Title,
				colISBN:            book.ISBN,
				colGenre:           book.Genre,
				colTotalCopies:     0,
				colAvailableCopies: 0,
			})

		sqlQuery, buildErr := e.toSQL(ctx, insertStmt, actionInsertBook)
		if buildErr != nil {
			return buildErr
		}

		if _, execErr := e.exec(ctx, tx, actionInsertBook, sqlQuery); execErr != nil {
			return execErr
		}

		if draft.InitialCopies == 0 {
			return nil
		}

		result, addErr := e.addCopiesInTx(ctx, tx, book.BookID, draft.InitialCopies)
		if addErr != nil {
			return addErr
		}

		book.TotalCopies = result.NewTotal
		book.AvailableCopies = result.NewAvailable

		return nil
	})
	if err != nil {
		return circulation.Book{}, observer.fail(err)
	}

	observer.succeed(map[string]string{spanAttrBookID: book.BookID.String()})

	return book, nil
}

// BookByID returns a book with its current counters.
func (e *Engine) BookByID(ctx context.Context, bookID circulation.BookID) (circulation.Book, error) {
	observer, ctx := e.observe(ctx, operationFindBook, map[string]string{spanAttrBookID: bookID.String()})

	row, found, err := e.loadBook(ctx, e.db, bookID, false)
	if err != nil {
		return circulation.Book{}, observer.fail(err)
	}

	if !found {
		return circulation.Book{}, observer.fail(errors.Join(circulation.ErrNotFound, circulation.ErrBookNotFound))
	}

	observer.succeed(map[string]string{spanAttrBookID: bookID.String()})

	return row.toBook(), nil
}

// BookExists reports whether a book with this id exists.
func (e *Engine) BookExists(ctx context.Context, bookID circulation.BookID) (bool, error) {
	_, found, err := e.loadBook(ctx, e.db, bookID, false)

	return found, err
}

// RegisterMember adds a member.
func (e *Engine) RegisterMember(ctx context.Context, draft circulation.MemberDraft) (circulation.Member, error) {
	observer, ctx := e.observe(ctx, operationRegisterMember, nil)

	if err := draft.Validate(); err != nil {
		return circulation.Member{}, observer.fail(err)
	}

	member := circulation.Member{
		MemberID: circulation.NewID(),
		Name:     draft.Name,
		Email:    draft.Email,
	}

	insertStmt := builder().
		Insert(tableMembers).
		Rows(goqu.Record{
			colMemberID: member.MemberID.String(),
			colName:     member.Name,
			colEmail:    member.Email,
		})

	sqlQuery, buildErr := e.toSQL(ctx, insertStmt, actionInsertMember)
	if buildErr != nil {
		return circulation.Member{}, observer.fail(buildErr)
	}

	if _, execErr := e.exec(ctx, e.db, actionInsertMember, sqlQuery); execErr != nil {
		return circulation.Member{}, observer.fail(execErr)
	}

	observer.succeed(map[string]string{spanAttrMemberID: member.MemberID.String()})

	return member, nil
}

// MemberExists reports whether a member with this id is registered.
// With it, an Engine satisfies circulation.MemberDirectory.
func (e *Engine) MemberExists(ctx context.Context, memberID circulation.MemberID) (bool, error) {
	observer, ctx := e.observe(ctx, operationMemberExistence, map[string]string{spanAttrMemberID: memberID.String()})

	exists, err := e.memberExists(ctx, e.db, memberID)
	if err != nil {
		return false, observer.fail(err)
	}

	observer.succeed(nil)

	return exists, nil
}
