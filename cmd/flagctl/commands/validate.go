package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/OrlandoBitencourt/flagship/pkg/provider"
)

type validateReport struct {
	File        string            `json:"file"`
	Revision    string            `json:"revision,omitempty"`
	TTL         string            `json:"ttl,omitempty"`
	Flags       map[string]string `json:"flags"`
	Experiments map[string]int    `json:"experiments"`
}

func newValidateCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a flag document",
		Long: `Parse a flag document and check every flag and experiment in it.

This command checks:
  - YAML/JSON syntax
  - typed flag values
  - experiment variants and targeting rules`,
		Example: `  # Validate the default document
  flagctl validate

  # Validate another document and print a JSON report
  flagctl validate -f ./config/flags.json --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(opts.file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", opts.file, err)
			}

			snap, err := provider.ParseDocument(data)
			if err != nil {
				return fmt.Errorf("invalid document %s: %w", opts.file, err)
			}

			report := validateReport{
				File:        opts.file,
				Revision:    snap.Revision,
				Flags:       make(map[string]string, len(snap.Flags)),
				Experiments: make(map[string]int, len(snap.Experiments)),
			}
			if snap.TTL > 0 {
				report.TTL = snap.TTL.String()
			}
			for key, v := range snap.Flags {
				report.Flags[key] = v.Kind().String()
			}
			for key, exp := range snap.Experiments {
				report.Experiments[key] = len(exp.Variants)
			}

			opts.logger.WithField("file", opts.file).Debug("document is valid")

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, report)
			}

			fmt.Fprintf(out, "%s: ok (revision %q, %d flags, %d experiments)\n",
				opts.file, report.Revision, len(report.Flags), len(report.Experiments))
			for _, key := range sortedKeys(report.Flags) {
				fmt.Fprintf(out, "  flag %s (%s)\n", key, report.Flags[key])
			}
			for _, key := range sortedKeys(report.Experiments) {
				fmt.Fprintf(out, "  experiment %s (%d variants)\n", key, report.Experiments[key])
			}
			return nil
		},
	}

	return cmd
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
