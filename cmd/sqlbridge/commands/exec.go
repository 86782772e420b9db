package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gandaldf/sqlbridge"
)

// newExecCommand creates the exec command.
func newExecCommand(opts *options) *cobra.Command {
	var (
		params    paramFlags
		isolation string
	)

	cmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Run a command and print the affected rows",
		Long:  "Run a statement against the configured database, optionally inside a transaction at a given isolation level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.bridge()
			if err != nil {
				return err
			}
			st, err := params.statement(b, args[0])
			if err != nil {
				return err
			}
			db, _, err := opts.open()
			if err != nil {
				return err
			}
			defer db.Close()

			level := isolation
			if level == "" {
				level = opts.cfg.Isolation
			}

			ctx := cmd.Context()
			var res *sqlbridge.Result
			if level == "" {
				res, err = st.ExecResultContext(ctx, db)
			} else {
				tx, txErr := sqlbridge.BeginTx(ctx, db, level)
				if txErr != nil {
					return txErr
				}
				res, err = st.ExecResultContext(ctx, tx)
				if err != nil {
					_ = tx.Rollback()
					return err
				}
				err = tx.Commit()
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rows affected: %d\n", res.RowsAffected())
			if id, ok := res.LastInsertID(); ok {
				fmt.Fprintf(out, "last insert id: %d\n", id)
			}
			return nil
		},
	}

	params.register(cmd)
	cmd.Flags().StringVar(&isolation, "isolation", "", "Run inside a transaction at this isolation level")

	return cmd
}
