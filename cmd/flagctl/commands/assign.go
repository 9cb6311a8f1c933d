package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OrlandoBitencourt/flagship"
)

type assignResult struct {
	Key        string               `json:"key"`
	Assigned   bool                 `json:"assigned"`
	Assignment *flagship.Assignment `json:"assignment,omitempty"`
	Reason     string               `json:"reason,omitempty"`
}

func newAssignCommand(opts *globalOptions) *cobra.Command {
	var ctxFlags contextFlags

	cmd := &cobra.Command{
		Use:   "assign EXPERIMENT",
		Short: "Bucket a context into an experiment",
		Example: `  # Assign a user
  flagctl assign checkout_color --user user-123

  # Assign with targeting attributes
  flagctl assign checkout_color --user user-123 --app-version 2.1.0 --attr plan=pro`,
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

			result := assignResult{Key: key}
			client.AssignOrError(cmd.Context(), key, evalCtx).
				OnSuccess(func(a *flagship.Assignment) {
					result.Assigned = true
					result.Assignment = a
				}).
				OnFailure(func(err error) { result.Reason = err.Error() })

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, result)
			}
			if !result.Assigned {
				fmt.Fprintf(out, "%s: not assigned (%s)\n", key, result.Reason)
				return nil
			}
			fmt.Fprintf(out, "%s: %s (payload %s)\n", key, result.Assignment.Variant, result.Assignment.Payload)
			return nil
		},
	}

	ctxFlags.register(cmd)
	return cmd
}
