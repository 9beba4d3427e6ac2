// Package cli defines the voxd command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rbright/voxd/internal/ipc"
)

const defaultHistoryLimit = 10

// Options are the persistent flags shared by every command.
type Options struct {
	ConfigPath string
	Verbose    bool
}

// UsageError marks invalid invocations. Callers exit with status 2.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

// IsUsage reports whether err came from a bad invocation.
func IsUsage(err error) bool {
	var usage *UsageError
	return errors.As(err, &usage)
}

// Actions executes parsed commands.
type Actions interface {
	Serve(ctx context.Context, opts Options) error
	Control(ctx context.Context, opts Options, command ipc.Command) error
	History(ctx context.Context, opts Options, limit int) error
	Devices(ctx context.Context, opts Options) error
	Doctor(ctx context.Context, opts Options) error
	Version(ctx context.Context) error
}

// NewRootCommand returns the root command with all subcommands attached.
func NewRootCommand(actions Actions, stdout, stderr io.Writer) *cobra.Command {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:   "voxd",
		Short: "Voice dictation pipeline daemon.",
		Long: `voxd captures speech, transcribes it, optionally rewrites it with a
local or remote language model, and delivers the result to the focused application.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &UsageError{Err: fmt.Errorf("unknown command: %s", args[0])}
			}
			return cmd.Help()
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})
	rootCmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "",
		"config file path (default: $XDG_CONFIG_HOME/voxd/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log debug output to stderr")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the daemon on stdin/stdout and the control socket",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return actions.Serve(cmd.Context(), *opts)
		},
	})

	for _, control := range []struct {
		command ipc.Command
		short   string
	}{
		{ipc.CommandStart, "Start a standard dictation session"},
		{ipc.CommandStop, "Stop capture and run the pipeline"},
		{ipc.CommandReset, "Abandon any session and return to idle"},
		{ipc.CommandStatus, "Print the daemon state"},
		{ipc.CommandPing, "Check that the daemon answers"},
	} {
		rootCmd.AddCommand(&cobra.Command{
			Use:   lower(control.command),
			Short: control.short,
			Args:  noArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return actions.Control(cmd.Context(), *opts, control.command)
			},
		})
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sessions, newest first",
		Args:  noArgs,
	}
	limit := historyCmd.Flags().IntP("limit", "n", defaultHistoryLimit, "number of records to show")
	historyCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if *limit <= 0 {
			return &UsageError{Err: fmt.Errorf("--limit must be positive, got %d", *limit)}
		}
		return actions.History(cmd.Context(), *opts, *limit)
	}
	rootCmd.AddCommand(historyCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "devices",
		Short: "List available input devices",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return actions.Devices(cmd.Context(), *opts)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Run configuration and environment checks",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return actions.Doctor(cmd.Context(), *opts)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return actions.Version(cmd.Context())
		},
	})

	return rootCmd
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return &UsageError{Err: fmt.Errorf("unexpected arguments after command %q", cmd.Name())}
	}
	return nil
}

func lower(c ipc.Command) string {
	return strings.ToLower(string(c))
}
