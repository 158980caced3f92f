package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/shell"
)

const (
	flagTitle    = "title"
	flagISBN     = "isbn"
	flagGenre    = "genre"
	flagCopies   = "copies"
	flagName     = "name"
	flagEmail    = "email"
	flagMember   = "member"
	flagCopy     = "copy"
	flagBook     = "book"
	flagLoan     = "loan"
	flagCount    = "count"
	flagOverdue  = "overdue"
	flagHistory  = "history"
	flagEventual = "eventual"
	flagType     = "type"
)

var (
	errTargetFlags = errors.New("exactly one of --copy and --book is required")
	errListFlags   = errors.New("--overdue and --history are mutually exclusive")
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the circulation tables and indexes if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.engine.ApplySchema(cmd.Context()); err != nil {
				return err
			}

			return a.print(map[string]string{"status": "ok"})
		},
	}
}

func newAddBookCommand(a *app) *cobra.Command {
	var draft circulation.BookDraft

	cmd := &cobra.Command{
		Use:   "add-book",
		Short: "Add a book with its initial copies to the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			book, err := a.engine.AddBook(cmd.Context(), draft)
			if err != nil {
				return err
			}

			return a.print(book)
		},
	}

	cmd.Flags().StringVar(&draft.Title, flagTitle, "", "book title")
	cmd.Flags().StringVar(&draft.ISBN, flagISBN, "", "unique ISBN")
	cmd.Flags().StringVar(&draft.Genre, flagGenre, "", "genre")
	cmd.Flags().IntVar(&draft.InitialCopies, flagCopies, 1, "number of copies")
	_ = cmd.MarkFlagRequired(flagTitle)
	_ = cmd.MarkFlagRequired(flagISBN)

	return cmd
}

func newRegisterMemberCommand(a *app) *cobra.Command {
	var draft circulation.MemberDraft

	cmd := &cobra.Command{
		Use:   "register-member",
		Short: "Register a library member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			member, err := a.engine.RegisterMember(cmd.Context(), draft)
			if err != nil {
				return err
			}

			return a.print(member)
		},
	}

	cmd.Flags().StringVar(&draft.Name, flagName, "", "member name")
	cmd.Flags().StringVar(&draft.Email, flagEmail, "", "member email")
	_ = cmd.MarkFlagRequired(flagName)

	return cmd
}

type borrowOutput struct {
	Loan   circulation.Loan
	Result shell.HandlerResult
}

func newBorrowCommand(a *app) *cobra.Command {
	var memberRaw, copyRaw, bookRaw string

	cmd := &cobra.Command{
		Use:   "borrow",
		Short: "Borrow a specific copy (--copy) or any free copy of a book (--book)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			memberID, err := parseID(flagMember, memberRaw)
			if err != nil {
				return err
			}

			target, err := targetFromFlags(copyRaw, bookRaw)
			if err != nil {
				return err
			}

			handler := shell.NewBorrowingHandler(a.engine, shell.WithRetryOptions(shell.WithMetrics(a.metrics, "borrow")))

			loan, result, err := handler.Handle(cmd.Context(), memberID, target)
			if err != nil {
				return err
			}

			return a.print(borrowOutput{Loan: loan, Result: result})
		},
	}

	cmd.Flags().StringVar(&memberRaw, flagMember, "", "member id")
	cmd.Flags().StringVar(&copyRaw, flagCopy, "", "copy id")
	cmd.Flags().StringVar(&bookRaw, flagBook, "", "book id")
	_ = cmd.MarkFlagRequired(flagMember)

	return cmd
}

func newReturnCommand(a *app) *cobra.Command {
	var loanRaw string

	cmd := &cobra.Command{
		Use:   "return",
		Short: "Return the copy of an open loan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loanID, err := parseID(flagLoan, loanRaw)
			if err != nil {
				return err
			}

			closed, err := a.engine.ReturnLoan(cmd.Context(), loanID)
			if err != nil {
				return err
			}

			return a.print(closed)
		},
	}

	cmd.Flags().StringVar(&loanRaw, flagLoan, "", "loan id")
	_ = cmd.MarkFlagRequired(flagLoan)

	return cmd
}

func newAddCopiesCommand(a *app) *cobra.Command {
	var bookRaw string
	var count int

	cmd := &cobra.Command{
		Use:   "add-copies",
		Short: "Add copies of an existing book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bookID, err := parseID(flagBook, bookRaw)
			if err != nil {
				return err
			}

			result, err := a.engine.AddCopies(cmd.Context(), bookID, count)
			if err != nil {
				return err
			}

			return a.print(result)
		},
	}

	cmd.Flags().StringVar(&bookRaw, flagBook, "", "book id")
	cmd.Flags().IntVar(&count, flagCount, 1, "number of copies to add")
	_ = cmd.MarkFlagRequired(flagBook)

	return cmd
}

func newLoansCommand(a *app) *cobra.Command {
	var memberRaw string
	var overdue, history, eventual bool

	cmd := &cobra.Command{
		Use:   "loans",
		Short: "List open loans, overdue loans (--overdue) or closed loans (--history)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if overdue && history {
				return errListFlags
			}

			ctx := cmd.Context()
			if eventual {
				ctx = circulation.WithEventualConsistency(ctx)
			}

			var memberID circulation.MemberID
			if memberRaw != "" {
				var err error
				if memberID, err = parseID(flagMember, memberRaw); err != nil {
					return err
				}
			}

			switch {
			case history && memberRaw != "":
				return printList(a, func() ([]circulation.ClosedLoan, error) { return a.engine.ListHistoryForMember(ctx, memberID) })
			case history:
				return printList(a, func() ([]circulation.ClosedLoan, error) { return a.engine.ListHistory(ctx) })
			case overdue:
				return printList(a, func() ([]circulation.Loan, error) { return overdueLoans(a, ctx, memberID) })
			case memberRaw != "":
				return printList(a, func() ([]circulation.Loan, error) { return a.engine.ListOpenLoansForMember(ctx, memberID) })
			default:
				return printList(a, func() ([]circulation.Loan, error) { return a.engine.ListOpenLoans(ctx) })
			}
		},
	}

	cmd.Flags().StringVar(&memberRaw, flagMember, "", "restrict to one member")
	cmd.Flags().BoolVar(&overdue, flagOverdue, false, "only loans past their due date")
	cmd.Flags().BoolVar(&history, flagHistory, false, "closed loans, most recent return first")
	cmd.Flags().BoolVar(&eventual, flagEventual, false, "allow reading from the replica")

	return cmd
}

func newInventoryCommand(a *app) *cobra.Command {
	var bookRaw string

	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Show the copy counters of a book and whether they match the loans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bookID, err := parseID(flagBook, bookRaw)
			if err != nil {
				return err
			}

			inventory, err := a.engine.Inventory(cmd.Context(), bookID)
			if err != nil {
				return err
			}

			return a.print(inventoryOutput{Inventory: inventory, Consistent: inventory.IsConsistent()})
		},
	}

	cmd.Flags().StringVar(&bookRaw, flagBook, "", "book id")
	_ = cmd.MarkFlagRequired(flagBook)

	return cmd
}

type inventoryOutput struct {
	circulation.Inventory
	Consistent bool
}

type journalOutput struct {
	SequenceNumber uint64
	EntryType      string
	OccurredAt     string
	Payload        any
	Metadata       any
}

func newJournalCommand(a *app) *cobra.Command {
	var bookRaw, loanRaw string
	var entryTypes []string

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Read the circulation journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			builder := circulation.BuildJournalFilter().OfEntryTypes(entryTypes...)

			if bookRaw != "" {
				bookID, err := parseID(flagBook, bookRaw)
				if err != nil {
					return err
				}
				builder = builder.ForBook(bookID)
			}

			if loanRaw != "" {
				loanID, err := parseID(flagLoan, loanRaw)
				if err != nil {
					return err
				}
				builder = builder.ForLoan(loanID)
			}

			entries, err := a.engine.ReadJournal(cmd.Context(), builder.Finalize())
			if err != nil {
				return err
			}

			return a.print(toJournalOutput(entries))
		},
	}

	cmd.Flags().StringVar(&bookRaw, flagBook, "", "only entries of this book")
	cmd.Flags().StringVar(&loanRaw, flagLoan, "", "only entries of this loan")
	cmd.Flags().StringSliceVar(&entryTypes, flagType, nil, "entry types (LoanOpened, LoanClosed, CopiesAdded)")

	return cmd
}

func toJournalOutput(entries circulation.JournalEntries) []journalOutput {
	output := make([]journalOutput, 0, len(entries))
	for _, entry := range entries {
		output = append(output, journalOutput{
			SequenceNumber: entry.SequenceNumber,
			EntryType:      entry.EntryType,
			OccurredAt:     entry.OccurredAt.Format(time.RFC3339Nano),
			Payload:        jsonValue(entry.PayloadJSON),
			Metadata:       jsonValue(entry.MetadataJSON),
		})
	}

	return output
}

// jsonValue decodes stored JSON so that it is printed with the same indentation as its surroundings.
func jsonValue(data []byte) any {
	var value any
	if err := jsonOutput.Unmarshal(data, &value); err != nil {
		return string(data)
	}

	return value
}

func printList[T any](a *app, list func() ([]T, error)) error {
	items, err := list()
	if err != nil {
		return err
	}

	if items == nil {
		items = []T{}
	}

	return a.print(items)
}

func overdueLoans(a *app, ctx context.Context, memberID circulation.MemberID) ([]circulation.Loan, error) {
	loans, err := a.engine.ListOverdueLoans(ctx)
	if err != nil || memberID == uuid.Nil {
		return loans, err
	}

	filtered := loans[:0]
	for _, loan := range loans {
		if loan.MemberID == memberID {
			filtered = append(filtered, loan)
		}
	}

	return filtered, nil
}

func parseID(flag string, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s: %w", flag, err)
	}

	return id, nil
}

func targetFromFlags(copyRaw, bookRaw string) (circulation.Target, error) {
	switch {
	case copyRaw != "" && bookRaw == "":
		copyID, err := parseID(flagCopy, copyRaw)
		if err != nil {
			return circulation.Target{}, err
		}

		return circulation.CopyTarget(copyID), nil

	case bookRaw != "" && copyRaw == "":
		bookID, err := parseID(flagBook, bookRaw)
		if err != nil {
			return circulation.Target{}, err
		}

		return circulation.BookTarget(bookID), nil

	default:
		return circulation.Target{}, errTargetFlags
	}
}
