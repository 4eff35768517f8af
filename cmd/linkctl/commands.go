package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sundayezeilo/shortlink/internal/account"
	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/idgen"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema for the configured driver",
		Args:  cobra.NoArgs,
		RunE: withEnv(opts, func(ctx context.Context, cmd *cobra.Command, e *env, _ []string) error {
			applied, err := e.stores.Migrate(ctx)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", v)
			}
			return nil
		}),
	}
}

func parseOwner(raw string) (uuid.UUID, error) {
	id, err := idgen.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--owner: %w", err)
	}
	return id, nil
}

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var owner, email, target, code string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a short link for an account",
		Long: `Create a short link owned by --owner. The account is created with the
user role if it does not exist yet.

Example:
  linkctl create --owner 0190b3f4-... --email me@example.com --url https://go.dev --code golang`,
		Args: cobra.NoArgs,
		RunE: withEnv(opts, func(ctx context.Context, cmd *cobra.Command, e *env, _ []string) error {
			ownerID, err := parseOwner(owner)
			if err != nil {
				return err
			}
			if _, err := e.accounts.Ensure(ctx, ownerID, email); err != nil {
				return fmt.Errorf("ensure account: %w", err)
			}

			link, err := e.links.Create(ctx, ownerID, shortener.CreateLinkRequest{OriginalURL: target, ShortCode: code})
			if err != nil {
				return describe(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:   %s\n", link.ID)
			fmt.Fprintf(out, "code: %s\n", link.ShortCode)
			if e.baseURL != "" {
				fmt.Fprintf(out, "url:  %s/%s\n", strings.TrimRight(e.baseURL, "/"), link.ShortCode)
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner account id (required)")
	cmd.Flags().StringVar(&email, "email", "", "owner email (required)")
	cmd.Flags().StringVar(&target, "url", "", "destination URL (required)")
	cmd.Flags().StringVar(&code, "code", "", "short code (required)")
	for _, f := range []string{"owner", "email", "url", "code"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <code>",
		Short: "Print the destination of a short code",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(opts, func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			target, err := e.resolver.Resolve(ctx, args[0])
			if err != nil {
				return describe(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), target)
			return nil
		}),
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		owner string
		p     shortener.ListParams
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an account's links, oldest first",
		Args:  cobra.NoArgs,
		RunE: withEnv(opts, func(ctx context.Context, cmd *cobra.Command, e *env, _ []string) error {
			ownerID, err := parseOwner(owner)
			if err != nil {
				return err
			}
			page, err := e.links.List(ctx, ownerID, p)
			if err != nil {
				return describe(err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCODE\tURL\tCREATED")
			for _, l := range page.Items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.ID, l.ShortCode, l.OriginalURL, l.CreatedAt.UTC().Format(time.RFC3339))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "page %d, %d of %d total\n", page.Page, len(page.Items), page.TotalCount)
			return nil
		}),
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner account id (required)")
	cmd.Flags().StringVar(&p.Search, "search", "", "substring of the code or URL")
	cmd.Flags().IntVar(&p.Page, "page", 1, "page number, starting at 1")
	cmd.Flags().IntVar(&p.PageSize, "page-size", 10, "items per page (1-100)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	var owner, id string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a link owned by an account",
		Args:  cobra.NoArgs,
		RunE: withEnv(opts, func(ctx context.Context, cmd *cobra.Command, e *env, _ []string) error {
			ownerID, err := parseOwner(owner)
			if err != nil {
				return err
			}
			linkID, err := idgen.Parse(id)
			if err != nil {
				return fmt.Errorf("--id: %w", err)
			}
			if err := e.links.Delete(ctx, ownerID, linkID); err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", linkID)
			return nil
		}),
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner account id (required)")
	cmd.Flags().StringVar(&id, "id", "", "link id (required)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newSetRoleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <account-id> <user|admin>",
		Short: "Change an existing account's role",
		Args:  cobra.ExactArgs(2),
		RunE: withEnv(opts, func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			id, err := idgen.Parse(args[0])
			if err != nil {
				return fmt.Errorf("account: %w", err)
			}
			acct, err := e.accounts.SetRole(ctx, id, account.Role(args[1]))
			if errx.Is(err, errx.NotFound) {
				return fmt.Errorf("account %s not found; it is created on first sign-in or by create", id)
			}
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now %s\n", acct.ID, acct.Email, acct.Role)
			return nil
		}),
	}
}
