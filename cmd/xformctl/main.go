package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Lllllllleong/xformflow/internal/gcp"
	"github.com/Lllllllleong/xformflow/internal/services"
	"github.com/spf13/cobra"
)

var Version = "dev"

type serviceOpener func(ctx context.Context, dsn string) (*services.XFormService, error)

func main() {
	if err := newRootCmd(openService).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openService builds the service from the same environment the functions
// use; a non-empty dsn replaces STORE_DSN.
func openService(ctx context.Context, dsn string) (*services.XFormService, error) {
	config, err := services.LoadXFormConfig()
	if err != nil {
		return nil, err
	}
	if dsn != "" {
		config.StoreDSN = dsn
	}
	return services.NewXFormServiceFromConfig(ctx, config)
}

type cliOptions struct {
	dsn     string
	output  string
	verbose bool
	open    serviceOpener
}

func newRootCmd(open serviceOpener) *cobra.Command {
	opts := &cliOptions{open: open}
	rootCmd := &cobra.Command{
		Use:           "xformctl",
		Short:         "Inspect and manage stored form submissions",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != outputJSON && opts.output != outputYAML {
				return fmt.Errorf("unsupported output %q (want %s or %s)", opts.output, outputJSON, outputYAML)
			}
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.dsn, "dsn", gcp.GetEnv("STORE_DSN", ""), "Store DSN (memory://, postgres://..., sqlite:///path, firestore://project/collection?bucket=b)")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", outputJSON, "Output format (json, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(getCmd(opts))
	rootCmd.AddCommand(xmlCmd(opts))
	rootCmd.AddCommand(md5Cmd(opts))
	rootCmd.AddCommand(tagsCmd(opts))
	rootCmd.AddCommand(metaCmd(opts))
	rootCmd.AddCommand(archiveCmd(opts))
	rootCmd.AddCommand(errorLogCmd(opts))

	return rootCmd
}
