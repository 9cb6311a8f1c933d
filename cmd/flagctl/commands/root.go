// Package commands implements the flagctl command tree.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/OrlandoBitencourt/flagship"
	"github.com/OrlandoBitencourt/flagship/pkg/provider"
)

// options shared by every command
type globalOptions struct {
	file       string
	verbose    bool
	jsonOutput bool
	timeout    time.Duration

	logger *logrus.Logger
}

// Execute runs the root command.
func Execute(ctx context.Context, logger *logrus.Logger, version, commit, buildDate string) error {
	return newRootCommand(logger, version, commit, buildDate).ExecuteContext(ctx)
}

func newRootCommand(logger *logrus.Logger, version, commit, buildDate string) *cobra.Command {
	opts := &globalOptions{logger: logger}

	rootCmd := &cobra.Command{
		Use:   "flagctl",
		Short: "Inspect and serve flagship flag documents",
		Long: `flagctl loads a flag document the way an application would and reports
what the flagship client resolves from it.

Commands:
  - validate: parse a document and report its flags and experiments
  - eval: resolve a flag for an evaluation context
  - assign: bucket an evaluation context into an experiment
  - serve: run a client with the admin and webhook servers`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				opts.logger.SetLevel(logrus.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.file, "file", "f", "flags.yaml", "flag document path")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "bootstrap timeout")

	rootCmd.AddCommand(newValidateCommand(opts))
	rootCmd.AddCommand(newEvalCommand(opts))
	rootCmd.AddCommand(newAssignCommand(opts))
	rootCmd.AddCommand(newServeCommand(opts))

	return rootCmd
}

// newClient builds a bootstrapped client over the flag document.
func (o *globalOptions) newClient(ctx context.Context, extra ...flagship.Option) (*flagship.Client, error) {
	file := provider.NewFileProvider(o.file, provider.WithFileLogger(o.logger))

	opts := append([]flagship.Option{
		flagship.WithAppKey("flagctl"),
		flagship.WithProviders(file),
		flagship.WithLogger(o.logger),
		flagship.WithInitialTimeout(o.timeout),
		flagship.WithRefreshInterval(0),
	}, extra...)

	client, err := flagship.New(opts...)
	if err != nil {
		return nil, err
	}
	if !client.EnsureBootstrap(ctx, o.timeout) {
		return nil, fmt.Errorf("bootstrap did not settle within %s", o.timeout)
	}
	if status := client.ProviderStatuses()[0]; status.ConsecutiveFailures > 0 {
		return nil, fmt.Errorf("failed to load %s", o.file)
	}
	return client, nil
}

// contextFlags collects evaluation context fields from flags.
type contextFlags struct {
	userID     string
	deviceID   string
	appVersion string
	region     string
	locale     string
	attributes []string
}

func (f *contextFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.userID, "user", "", "user id")
	cmd.Flags().StringVar(&f.deviceID, "device", "", "device id")
	cmd.Flags().StringVar(&f.appVersion, "app-version", "", "application version")
	cmd.Flags().StringVar(&f.region, "region", "", "region code")
	cmd.Flags().StringVar(&f.locale, "locale", "", "locale")
	cmd.Flags().StringArrayVar(&f.attributes, "attr", nil, "attribute as key=value (repeatable)")
}

func (f *contextFlags) build() (flagship.Context, error) {
	evalCtx := flagship.NewContext(f.userID).
		WithDeviceID(f.deviceID).
		WithAppVersion(f.appVersion).
		WithRegion(f.region).
		WithLocale(f.locale)

	for _, kv := range f.attributes {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return flagship.Context{}, fmt.Errorf("invalid attribute %q, want key=value", kv)
		}
		evalCtx = evalCtx.WithAttribute(key, value)
	}
	return evalCtx, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
