package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gandaldf/sqlbridge"
)

type paramFlags struct {
	object string
	pairs  []string
}

func (p *paramFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.object, "params", "", "Parameters as a JSON object")
	cmd.Flags().StringArrayVarP(&p.pairs, "param", "p", nil, "Parameter as key=<json literal>, repeatable")
}

// statement rewrites sql with the parsed parameters.
func (p *paramFlags) statement(b *sqlbridge.Bridge, sql string) (*sqlbridge.Statement, error) {
	params, err := parseParams(p.object, p.pairs)
	if err != nil {
		return nil, err
	}
	return b.Statement(sql, params)
}

// newRewriteCommand creates the rewrite command.
func newRewriteCommand(opts *options) *cobra.Command {
	var (
		params paramFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "rewrite <sql>",
		Short: "Print the positional form of a statement",
		Long:  "Rewrite :name placeholders into the dialect's markers and print the SQL with its ordered parameters",
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
			if asJSON {
				return writeStatementJSON(cmd.OutOrStdout(), st)
			}
			return writeStatement(cmd.OutOrStdout(), st)
		},
	}

	params.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the statement as JSON")

	return cmd
}

func writeStatement(w io.Writer, st *sqlbridge.Statement) error {
	if _, err := fmt.Fprintln(w, st.SQL()); err != nil {
		return err
	}
	for i, p := range st.Params() {
		if _, err := fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, p.TypeTag(), p); err != nil {
			return err
		}
	}
	return nil
}

func writeStatementJSON(w io.Writer, st *sqlbridge.Statement) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		SQL     string            `json:"sql"`
		Dialect string            `json:"dialect"`
		Params  []sqlbridge.Value `json:"params"`
	}{
		SQL:     st.SQL(),
		Dialect: st.Dialect().String(),
		Params:  st.Params(),
	})
}
