// Package cli implements the portal command line: sign in with a password and a texted code,
// then land on the destination of the account's role.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"backoffice/portal/internal/config"
	"backoffice/portal/internal/logging"
	"backoffice/portal/internal/routing"
)

type rootOptions struct {
	realm      string
	quiet      bool
	identifier string
	limit      int32
}

// NewRootCommand returns the portal command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "portal",
		Short: "Sign in to the back-office portal",
		Long: `portal signs you in with your password and a one-time code sent by SMS,
then tells you where your role lands in the chosen realm.

The session is kept between runs. Codes are prompted interactively; type
:resend at the code prompt for a new code or :quit to stop.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.realm, "realm", "", "realm to sign in to: general or admin (default from REALM)")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not draw progress spinners")

	login := &cobra.Command{
		Use:   "login",
		Short: "Sign in with your password and a verification code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, true, func(ctx context.Context, d *Deps) error {
				return d.Login(ctx, strings.TrimSpace(opts.identifier))
			})
		},
	}
	login.Flags().StringVarP(&opts.identifier, "identifier", "u", "", "email to sign in with (prompted when empty)")

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Finish signing in to the stored session with a new code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, true, func(ctx context.Context, d *Deps) error { return d.Verify(ctx) })
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the stored session and its destination",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, false, func(ctx context.Context, d *Deps) error { return d.Status(ctx) })
		},
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "End the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, false, func(ctx context.Context, d *Deps) error { return d.Logout(ctx) })
		},
	}

	history := &cobra.Command{
		Use:   "history",
		Short: "List recent sign-in activity of the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, false, func(ctx context.Context, d *Deps) error { return d.History(ctx, opts.limit) })
		},
	}
	history.Flags().Int32VarP(&opts.limit, "limit", "n", 20, "number of entries to show")

	root.AddCommand(login, verify, status, logout, history)
	return root
}

// resolveRealm picks the --realm flag over the configured realm.
func resolveRealm(flag string, cfg *config.Config) (routing.Realm, error) {
	name := strings.ToLower(strings.TrimSpace(flag))
	if name == "" {
		name = cfg.Realm
	}
	return routing.ParseRealm(name)
}

// run loads the configuration, wires the services and calls fn. Everything is released when fn returns.
func run(cmd *cobra.Command, opts *rootOptions, interactive bool, fn func(context.Context, *Deps) error) error {
	ctx := cmd.Context()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	realm, err := resolveRealm(opts.realm, cfg)
	if err != nil {
		return err
	}
	logger := logging.New(cmd.ErrOrStderr(), logging.ParseLevel(cfg.LogLevel), false)

	app, err := Build(ctx, cfg, realm, logger)
	if err != nil {
		return err
	}
	defer app.Close(context.WithoutCancel(ctx))

	d := &Deps{
		Controller: app.Controller,
		Tokens:     app.Flags,
		Creds:      app.Credentials,
		Audit:      app.Audit,
		Out:        cmd.OutOrStdout(),
		Quiet:      opts.quiet,
		PeekCode:   app.PeekCode,
	}
	if interactive {
		p, err := NewPrompter()
		if err != nil {
			return err
		}
		defer p.Close()
		d.Prompt = p
	}
	return fn(ctx, d)
}

// Execute runs the portal command and exits with its exit code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil && !errors.Is(err, ErrAborted) {
		fmt.Fprintln(os.Stderr, text.FgRed.Sprint("Error: ")+messageOf(err))
	}
	os.Exit(ExitCode(err))
}
