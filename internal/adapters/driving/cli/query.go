package cli

import (
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Run a read-only query against the structured tables",
	Long: `Executes a single SELECT statement against the KPI catalog and
employee directory through the same guard the agent uses. Anything but a
read-only SELECT is rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	guard, closer, err := buildQueryGuard()
	if err != nil {
		return err
	}
	defer closer()

	// Guard failures come back as text, matching what the agent sees.
	cmd.Println(guard.Execute(cmd.Context(), args[0]))
	return nil
}
