package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/promptkit/promptkit/config"
	"github.com/ZanzyTHEbar/promptkit/promptkit/harness"
	"github.com/ZanzyTHEbar/promptkit/promptkit/logging"
	"github.com/ZanzyTHEbar/promptkit/promptkit/parts"
)

var errStoreDisabled = errors.New("session store is disabled; set store.enabled")

type app struct {
	configPath string
	timeout    time.Duration
	cfg        *config.Config
	logger     zerolog.Logger
	factory    *harness.Factory
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "promptkit",
		Short:         "Turn markdown prompts into Gemini parts and keep conversations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.NewWithWriter(cfg.Logging, cmd.ErrOrStderr())
			a.factory = harness.NewFactory(cfg, nil, a.logger)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.factory != nil {
				return a.factory.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config file (default: ./config.yaml)")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 2*time.Minute, "Operation timeout")

	root.AddCommand(a.partsCmd(), a.askCmd(), a.sessionsCmd())
	return root
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout)
}

func (a *app) partsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parts <prompt>",
		Short: "Print the parts a prompt segments into",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			m, err := a.factory.NewSession(ctx)
			if err != nil {
				return err
			}
			data, err := m.ToPartsJSON(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func (a *app) askCmd() *cobra.Command {
	var (
		sessionID string
		stream    bool
	)
	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Send a prompt to the model and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			m, err := a.factory.OpenSession(ctx, sessionID)
			if err != nil {
				return err
			}
			m.Ask(ctx, strings.Join(args, " "))

			out := cmd.OutOrStdout()
			if stream {
				_, err = m.Stream(ctx, func(chunk []parts.Part) error {
					_, err := fmt.Fprint(out, strings.Join(parts.Texts(chunk), ""))
					return err
				})
				fmt.Fprintln(out)
			} else {
				var reply []parts.Part
				if reply, err = m.Send(ctx); err == nil {
					fmt.Fprintln(out, strings.Join(parts.Texts(reply), ""))
				}
			}
			if err != nil {
				return err
			}

			if err := m.Save(ctx); err != nil {
				return err
			}
			if a.cfg.Store.Enabled {
				fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", m.ID())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Continue a stored session")
	cmd.Flags().BoolVar(&stream, "stream", false, "Print the reply as it streams")
	return cmd
}

func (a *app) sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored sessions",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if !a.cfg.Store.Enabled {
				return errStoreDisabled
			}
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			store, err := a.factory.Store(ctx)
			if err != nil {
				return err
			}
			infos, err := store.ListSessions(ctx)
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", info.ID, info.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a stored session snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			m, err := a.factory.LoadSession(ctx, args[0])
			if err != nil {
				return err
			}
			data, err := m.SessionJSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			store, err := a.factory.Store(ctx)
			if err != nil {
				return err
			}
			return store.DeleteSession(ctx, args[0])
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}
