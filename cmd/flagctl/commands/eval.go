package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OrlandoBitencourt/flagship"
)

type evalResult struct {
	Key    string          `json:"key"`
	Found  bool            `json:"found"`
	Value  *flagship.Value `json:"value,omitempty"`
	Source flagship.Source `json:"source"`
}

func newEvalCommand(opts *globalOptions) *cobra.Command {
	var ctxFlags contextFlags

	cmd := &cobra.Command{
		Use:   "eval KEY",
		Short: "Resolve a flag",
		Example: `  # Resolve a flag
  flagctl eval new_checkout

  # Resolve a flag for a user in a region
  flagctl eval max_items --user user-123 --region BR --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			evalCtx, err := ctxFlags.build()
			if err != nil {
				return err
			}

			client, err := opts.newClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Stop()

			result := evalResult{Key: key}
			if value, ok := client.Value(cmd.Context(), key, evalCtx); ok {
				result.Found = true
				result.Value = &value
			}
			result.Source = client.FlagStatus(key).Source

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, result)
			}
			if !result.Found {
				fmt.Fprintf(out, "%s: not found\n", key)
				return nil
			}
			fmt.Fprintf(out, "%s = %s (%s, from %s)\n", key, result.Value, result.Value.Kind(), result.Source)
			return nil
		},
	}

	ctxFlags.register(cmd)
	return cmd
}
