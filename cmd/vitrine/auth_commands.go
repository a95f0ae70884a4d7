package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"vitrine/internal/config"
	"vitrine/internal/credentials"
	"vitrine/internal/services/contentapi"
)

func newAuthCommand(ctx *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Link and inspect the posting account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newAuthURLCommand(ctx))
	cmd.AddCommand(newAuthExchangeCommand(ctx))
	cmd.AddCommand(newAuthStatusCommand(ctx))

	return cmd
}

func newAuthURLCommand(ctx *cliContext) *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "url",
		Short: "Print the consent URL that authorizes this app to publish",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := contentapi.New(cfg)
			if err != nil {
				return err
			}
			if state == "" {
				state = uuid.NewString()
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, client.AuthorizationURL(state))
			fmt.Fprintln(out)
			fmt.Fprintln(out, "After approving, run: vitrine auth exchange --code <code>")
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "CSRF state parameter to embed in the URL")
	return cmd
}

func newAuthExchangeCommand(ctx *cliContext) *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Trade an authorization code for the account token pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCredentials(func(cfg *config.Config, manager *credentials.Manager, client *contentapi.Client) error {
				record, err := client.ExchangeCode(cmd.Context(), code)
				if err != nil {
					return err
				}
				if err := manager.Replace(cmd.Context(), record); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "Account linked.")
				if record.AccountID != "" {
					fmt.Fprintf(out, "  account: %s\n", record.AccountID)
				}
				fmt.Fprintf(out, "  expires: %s\n", record.ExpiresAt.Local().Format(time.RFC1123))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Authorization code from the consent redirect")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func newAuthStatusCommand(ctx *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored credential state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCredentials(func(cfg *config.Config, manager *credentials.Manager, client *contentapi.Client) error {
				out := cmd.OutOrStdout()
				if cfg.API.AccessToken != "" {
					fmt.Fprintln(out, "Using the static token from api.access_token; OAuth state is not tracked.")
					return nil
				}

				record, state, err := manager.Inspect(cmd.Context())
				if err != nil {
					return err
				}

				line := fmt.Sprintf("Credential state: %s", state)
				if shouldColorize(out) {
					if color := credentialStateColor(state); color != "" {
						line = color + line + ansiReset
					}
				}
				fmt.Fprintln(out, line)

				if record.Empty() {
					fmt.Fprintln(out, "No account linked. Start with 'vitrine auth url'.")
					return nil
				}
				if record.AccountID != "" {
					fmt.Fprintf(out, "  account: %s\n", record.AccountID)
				}
				if !record.ExpiresAt.IsZero() {
					fmt.Fprintf(out, "  expires: %s\n", record.ExpiresAt.Local().Format(time.RFC1123))
				}
				if !record.UpdatedAt.IsZero() {
					fmt.Fprintf(out, "  updated: %s\n", record.UpdatedAt.Local().Format(time.RFC1123))
				}
				return nil
			})
		},
	}
}

func credentialStateColor(state credentials.State) string {
	switch state {
	case credentials.StateValid:
		return ansiGreen
	case credentials.StateNearExpiry:
		return ansiYellow
	case credentials.StateExpired, credentials.StateInvalid:
		return ansiRed
	default:
		return ""
	}
}
