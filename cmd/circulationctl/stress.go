package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/shell"
)

const (
	flagBorrowers   = "borrowers"
	flagMetricsAddr = "metrics-addr"
	flagHold        = "hold"

	defaultBorrowers = 50
)

var errInvalidBorrowers = errors.New("--borrowers must be positive")

// stressEngine is what a stress run needs from the engine.
type stressEngine interface {
	shell.Borrower
	RegisterMember(ctx context.Context, draft circulation.MemberDraft) (circulation.Member, error)
	Inventory(ctx context.Context, bookID circulation.BookID) (circulation.Inventory, error)
}

// stressReport is printed as the result of a stress run.
type stressReport struct {
	BookID           circulation.BookID
	Borrowers        int
	Succeeded        int
	NotAvailable     int
	Conflicts        int
	Busy             int
	Failed           int
	Retried          int
	MaxAttempts      int
	DistinctCopies   int
	CopyLentTwice    bool
	DurationMS       float64
	InventoryBefore  circulation.Inventory
	InventoryAfter   circulation.Inventory
	InventoryMatches bool
}

// stressRunner lets a number of members borrow from the same book at the same time.
type stressRunner struct {
	engine    stressEngine
	handler   shell.BorrowingHandler
	borrowers int
}

func newStressRunner(engine stressEngine, borrowers int, retryOptions ...shell.RetryOption) stressRunner {
	return stressRunner{
		engine:    engine,
		handler:   shell.NewBorrowingHandler(engine, shell.WithRetryOptions(retryOptions...)),
		borrowers: borrowers,
	}
}

type borrowOutcome struct {
	loan   circulation.Loan
	result shell.HandlerResult
	err    error
}

func (r stressRunner) run(ctx context.Context, bookID circulation.BookID) (stressReport, error) {
	report := stressReport{BookID: bookID, Borrowers: r.borrowers}

	before, err := r.engine.Inventory(ctx, bookID)
	if err != nil {
		return report, err
	}
	report.InventoryBefore = before

	memberIDs := make([]circulation.MemberID, 0, r.borrowers)
	for i := 0; i < r.borrowers; i++ {
		member, registerErr := r.engine.RegisterMember(ctx, circulation.MemberDraft{Name: fmt.Sprintf("stress borrower %d", i+1)})
		if registerErr != nil {
			return report, registerErr
		}
		memberIDs = append(memberIDs, member.MemberID)
	}

	outcomes := make([]borrowOutcome, r.borrowers)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i, memberID := range memberIDs {
		i, memberID := i, memberID
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			loan, result, borrowErr := r.handler.Handle(ctx, memberID, circulation.BookTarget(bookID))
			outcomes[i] = borrowOutcome{loan: loan, result: result, err: borrowErr}
		}()
	}

	startedAt := time.Now()
	close(start)
	wg.Wait()
	report.DurationMS = float64(time.Since(startedAt).Microseconds()) / 1000

	lentCopies := make(map[circulation.CopyID]struct{})
	for _, outcome := range outcomes {
		report.tally(outcome)

		if outcome.err == nil {
			if _, seen := lentCopies[outcome.loan.CopyID]; seen {
				report.CopyLentTwice = true
			}
			lentCopies[outcome.loan.CopyID] = struct{}{}
		}
	}
	report.DistinctCopies = len(lentCopies)

	after, err := r.engine.Inventory(ctx, bookID)
	if err != nil {
		return report, err
	}
	report.InventoryAfter = after
	report.InventoryMatches = after.IsConsistent() && after.Available == before.Available-report.Succeeded

	return report, nil
}

func (r *stressReport) tally(outcome borrowOutcome) {
	if outcome.result.Retried() {
		r.Retried++
	}

	r.MaxAttempts = max(r.MaxAttempts, outcome.result.Attempts)

	switch {
	case outcome.err == nil:
		r.Succeeded++
	case errors.Is(outcome.err, circulation.ErrNotAvailable):
		r.NotAvailable++
	case errors.Is(outcome.err, circulation.ErrConflict):
		r.Conflicts++
	case errors.Is(outcome.err, circulation.ErrBusy):
		r.Busy++
	default:
		r.Failed++
	}
}

func newStressCommand(a *app) *cobra.Command {
	var bookRaw, metricsAddr string
	var borrowers int
	var hold time.Duration

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Let many members borrow any copy of one book concurrently and verify the counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if borrowers <= 0 {
				return errInvalidBorrowers
			}

			bookID, err := parseID(flagBook, bookRaw)
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			if metricsAddr == "" {
				metricsAddr = a.cfg.MetricsAddr
			}

			if metricsAddr != "" {
				shutdown, serveErr := startOpsServer(metricsAddr, newOpsRouter(a.registry), a.logger)
				if serveErr != nil {
					return serveErr
				}

				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = shutdown(shutdownCtx)
				}()
			}

			runner := newStressRunner(a.engine, borrowers, shell.WithMetrics(a.metrics, "borrow"))

			report, err := runner.run(ctx, bookID)
			if err != nil {
				return err
			}

			if err = a.print(report); err != nil {
				return err
			}

			if metricsAddr != "" && hold > 0 {
				select {
				case <-time.After(hold):
				case <-ctx.Done():
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&bookRaw, flagBook, "", "book id")
	cmd.Flags().IntVar(&borrowers, flagBorrowers, defaultBorrowers, "number of concurrent borrowers")
	cmd.Flags().StringVar(&metricsAddr, flagMetricsAddr, "", "serve /metrics and /health on this address (default: METRICS_ADDR)")
	cmd.Flags().DurationVar(&hold, flagHold, 0, "keep serving metrics this long after the run")
	_ = cmd.MarkFlagRequired(flagBook)

	return cmd
}
