// ABOUTME: Cobra command tree for the hearth client
// ABOUTME: ask, ping and sessions map onto the daemon's socket protocol

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/hearth/internal/config"
	"github.com/2389/hearth/internal/ipc"
)

// sessionEnv carries the session id between invocations.
const sessionEnv = "HEARTH_SESSION_ID"

type globalFlags struct {
	socket  string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "hearth [query]",
		Short: "Ask the local hearthd assistant",
		Long: "hearth sends queries to a running hearthd daemon. Running hearth with a\n" +
			"query and no subcommand is the same as 'hearth ask'.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runAsk(cmd, flags, args, os.Getenv(sessionEnv), false)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flags.socket, "socket", "s", config.DefaultSocketPath(), "daemon socket path")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", ipc.DefaultClientTimeout, "how long to wait for the daemon")

	root.AddCommand(newAskCmd(flags))
	root.AddCommand(newPingCmd(flags))
	root.AddCommand(newSessionsCmd(flags))
	root.AddCommand(newVersionCmd())

	return root
}

func newAskCmd(flags *globalFlags) *cobra.Command {
	var sessionID string
	var newSession bool

	cmd := &cobra.Command{
		Use:   "ask <query...>",
		Short: "Send a query, continuing the current session",
		Long: "Send a query to the daemon. Use '-' to read the query from stdin.\n" +
			"The session defaults to $" + sessionEnv + " so consecutive queries share context.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, flags, args, sessionID, newSession)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", os.Getenv(sessionEnv), "session id to continue")
	cmd.Flags().BoolVar(&newSession, "new", false, "start a new session")
	return cmd
}

func newPingCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the daemon is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			start := time.Now()
			if err := newClient(flags).Ping(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "PONG (%s)\n", time.Since(start).Round(time.Microsecond))
			return nil
		},
	}
}

func newSessionsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List live session ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			ids, err := newClient(flags).ListSessions(ctx)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no sessions")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func newClient(flags *globalFlags) *ipc.Client {
	c := ipc.NewClient(flags.socket)
	c.SetTimeout(flags.timeout)
	return c
}

func runAsk(cmd *cobra.Command, flags *globalFlags, args []string, sessionID string, newSession bool) error {
	query, err := buildQuery(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if newSession {
		sessionID = ""
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
	defer cancel()

	resp, err := newClient(flags).Query(ctx, query, sessionID)
	if err != nil {
		return err
	}

	if resp.Response != "" {
		fmt.Fprintln(cmd.OutOrStdout(), resp.Response)
	}
	if resp.SessionID != nil && *resp.SessionID != sessionID {
		gray := color.New(color.FgHiBlack)
		gray.Fprintf(cmd.ErrOrStderr(), "session: %s (export %s=%s to continue)\n", *resp.SessionID, sessionEnv, *resp.SessionID)
	}
	if resp.Error != nil {
		return errors.New(*resp.Error)
	}
	return nil
}

// buildQuery joins args into one query. A lone "-" reads the query from in.
func buildQuery(args []string, in io.Reader) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("reading query from stdin: %w", err)
		}
		args = []string{string(data)}
	}

	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return "", errors.New("query is empty")
	}
	return query, nil
}
