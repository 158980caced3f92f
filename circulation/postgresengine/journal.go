package postgresengine

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine/internal/adapters"
)

// appendJournalEntry inserts a journal entry inside the transaction of the transition it records.
func (e *Engine) appendJournalEntry(ctx context.Context, tx adapters.DBTx, entry circulation.JournalEntry) error {
	insertStmt := builder().
		Insert(tableJournal).
		Cols(colEntryType, colOccurredAt, colPayload, colMetadata).
		Vals(goqu.Vals{
			entry.EntryType,
			entry.OccurredAt,
			goqu.L(castJsonb, string(entry.PayloadJSON)),
			goqu.L(castJsonb, string(entry.MetadataJSON)),
		})

	sqlQuery, buildErr := e.toSQL(ctx, insertStmt, actionAppendJournal)
	if buildErr != nil {
		return buildErr
	}

	_, execErr := e.exec(ctx, tx, actionAppendJournal, sqlQuery)

	return execErr
}

// ReadJournal returns the journal entries matching filter in the order they were appended.
func (e *Engine) ReadJournal(ctx context.Context, filter circulation.JournalFilter) (circulation.JournalEntries, error) {
	observer, ctx := e.observe(ctx, operationReadJournal, nil)

	selectStmt := builder().
		From(tableJournal).
		Select(colSequenceNumber, colEntryType, colOccurredAt, colPayload, colMetadata).
		Order(goqu.C(colSequenceNumber).Asc())

	if conditions := journalConditions(filter); len(conditions) > 0 {
		selectStmt = selectStmt.Where(conditions...)
	}

	sqlQuery, buildErr := e.toSQL(ctx, selectStmt, actionReadJournal)
	if buildErr != nil {
		return nil, observer.fail(buildErr)
	}

	entries := make(circulation.JournalEntries, 0)
	_, queryErr := e.queryRows(ctx, e.db, actionReadJournal, sqlQuery, func(rows adapters.DBRows) error {
		var sequenceNumber int64
		entry := circulation.JournalEntry{}

		if scanErr := rows.Scan(&sequenceNumber, &entry.EntryType, &entry.OccurredAt, &entry.PayloadJSON, &entry.MetadataJSON); scanErr != nil {
			return scanErr
		}

		built, buildEntryErr := circulation.BuildJournalEntry(
			entry.EntryType,
			circulation.ToStorageTime(entry.OccurredAt),
			entry.PayloadJSON,
			entry.MetadataJSON,
		)
		if buildEntryErr != nil {
			return buildEntryErr
		}

		built.SequenceNumber = uint64(sequenceNumber)
		entries = append(entries, built)

		return nil
	})
	if queryErr != nil {
		return nil, observer.fail(queryErr)
	}

	observer.succeedWithRows(len(entries))

	return entries, nil
}

func journalConditions(filter circulation.JournalFilter) []exp.Expression {
	conditions := make([]exp.Expression, 0)

	if entryTypes := filter.EntryTypes(); len(entryTypes) > 0 {
		typeExpressions := make([]exp.Expression, 0, len(entryTypes))
		for _, entryType := range entryTypes {
			typeExpressions = append(typeExpressions, goqu.Ex{colEntryType: entryType})
		}

		// entry types are always matched with OR
		conditions = append(conditions, goqu.Or(typeExpressions...))
	}

	for _, predicate := range filter.Predicates() {
		conditions = append(
			conditions,
			goqu.L(fmt.Sprintf(`%s @> '{"%s": "%s"}'`, colPayload, predicate.Key(), predicate.Val())),
		)
	}

	if !filter.OccurredFrom().IsZero() {
		conditions = append(conditions, goqu.C(colOccurredAt).Gte(filter.OccurredFrom()))
	}

	if !filter.OccurredUntil().IsZero() {
		conditions = append(conditions, goqu.C(colOccurredAt).Lte(filter.OccurredUntil()))
	}

	return conditions
}
