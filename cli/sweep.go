package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "sweep",
		Short:        "Resolve pending ledger transactions once and print the report",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, logger, err := rootOpts.load()
			if err != nil {
				return err
			}
			st, err := connect(cmd.Context(), c, logger)
			if err != nil {
				return err
			}
			defer st.client.Close()

			report, err := st.sweeper(c, logger).RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
