package main

import (
	"io"

	"github.com/spf13/cobra"
)

// newRootCommand returns the command tree and the app it sets up. Call app.tearDown after execution.
func newRootCommand(out io.Writer) (*cobra.Command, *app) {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "circulationctl",
		Short:         "Operate the library circulation database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setUp(cmd.Context())
		},
	}

	root.AddCommand(
		newMigrateCommand(a),
		newAddBookCommand(a),
		newRegisterMemberCommand(a),
		newBorrowCommand(a),
		newReturnCommand(a),
		newAddCopiesCommand(a),
		newLoansCommand(a),
		newInventoryCommand(a),
		newJournalCommand(a),
		newStressCommand(a),
	)

	return root, a
}
