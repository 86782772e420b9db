package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// newQueryCommand creates the query command.
func newQueryCommand(opts *options) *cobra.Command {
	var params paramFlags

	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a query and print the decoded rows",
		Long:  "Run a query against the configured database and print rows, column types and metadata as JSON",
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

			res, err := st.QueryContext(cmd.Context(), db)
			if err != nil {
				return err
			}
			opts.logger.Debug("query finished", "rows", res.Len())

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	params.register(cmd)

	return cmd
}
