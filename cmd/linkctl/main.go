// Command linkctl manages links and accounts directly against the store,
// through the same services the HTTP server uses.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sundayezeilo/shortlink/internal/account"
	"github.com/sundayezeilo/shortlink/internal/app"
	"github.com/sundayezeilo/shortlink/internal/config"
	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.LoadEnv()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// env is what every subcommand needs once the store is open.
type env struct {
	stores   *app.Stores
	links    shortener.Service
	resolver *shortener.Resolver
	accounts account.Service
	baseURL  string
}

type rootOptions struct {
	baseURL  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "linkctl",
		Short:         "Manage short links from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", os.Getenv("SERVER_BASE_URL"), "public base URL used to print short links")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newMigrateCmd(opts),
		newCreateCmd(opts),
		newResolveCmd(opts),
		newListCmd(opts),
		newDeleteCmd(opts),
		newSetRoleCmd(opts),
	)
	return root
}

// open connects to the configured database and builds the services.
func open(ctx context.Context, cmd *cobra.Command, opts *rootOptions) (*env, error) {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return nil, err
	}

	logger := app.NewLogger(cmd.ErrOrStderr(), opts.logLevel).With("component", "linkctl")
	slog.SetDefault(logger)

	stores, err := app.OpenStores(ctx, *cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &env{
		stores:   stores,
		links:    shortener.NewService(stores.Links, &shortener.ServiceConfig{Logger: logger}),
		resolver: shortener.NewResolver(stores.Links, &shortener.ResolverConfig{Logger: logger}),
		accounts: account.NewService(stores.Accounts, logger),
		baseURL:  opts.baseURL,
	}, nil
}

// withEnv opens the store for the duration of fn.
func withEnv(opts *rootOptions, fn func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := open(ctx, cmd, opts)
		if err != nil {
			return err
		}
		defer e.stores.Close()
		return fn(ctx, cmd, e, args)
	}
}

// describe turns a service error into a message fit for a terminal.
func describe(err error) error {
	var ve *shortener.ValidationError
	if errors.As(err, &ve) {
		return fmt.Errorf("%s: %s", ve.Field, ve.Message())
	}
	kind := errx.KindOf(err)
	if kind == errx.Internal || kind == errx.Unknown {
		return err
	}
	return fmt.Errorf("%s: %v", errx.Message(kind), err)
}
