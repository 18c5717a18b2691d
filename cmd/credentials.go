package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/lifeassist/internal/credential"
	"github.com/teemow/lifeassist/internal/logging"
)

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Inspect and maintain stored Google credentials",
	}

	cmd.AddCommand(newCredentialsShowCmd())
	cmd.AddCommand(newCredentialsRefreshCmd())
	cmd.AddCommand(newCredentialsKeygenCmd())

	return cmd
}

func newCredentialsShowCmd() *cobra.Command {
	var storage StorageConfig

	cmd := &cobra.Command{
		Use:   "show <user-id|email>",
		Short: "Print a stored credential with its tokens masked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loadStorageEnvVars(cmd, &storage)

			ctx := cmd.Context()
			store, err := openStore(ctx, storage)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			cred, err := lookupCredential(ctx, store, args[0])
			if err != nil {
				return err
			}
			printCredential(cmd.OutOrStdout(), cred, time.Now())
			return nil
		},
	}

	addStorageFlags(cmd, &storage)
	return cmd
}

// lookupCredential treats key as an email when it contains an @.
func lookupCredential(ctx context.Context, store credential.Store, key string) (*credential.Credential, error) {
	if strings.Contains(key, "@") {
		return store.GetByEmail(ctx, key)
	}
	return store.Get(ctx, key)
}

func printCredential(w io.Writer, c *credential.Credential, now time.Time) {
	fmt.Fprintf(w, "User ID:       %s\n", c.UserID)
	fmt.Fprintf(w, "Email:         %s\n", c.Email)
	if c.Name != "" {
		fmt.Fprintf(w, "Name:          %s\n", c.Name)
	}
	fmt.Fprintf(w, "Access token:  %s\n", logging.SanitizeToken(c.AccessToken))
	fmt.Fprintf(w, "Refresh token: %s\n", logging.SanitizeToken(c.RefreshToken))

	switch {
	case c.AccessTokenExpiresAt.IsZero():
		fmt.Fprintln(w, "Expires:       unknown")
	case c.AccessTokenExpiresAt.After(now):
		fmt.Fprintf(w, "Expires:       %s (in %s)\n", c.AccessTokenExpiresAt.Format(time.RFC3339), c.AccessTokenExpiresAt.Sub(now).Round(time.Second))
	default:
		fmt.Fprintf(w, "Expires:       %s (expired)\n", c.AccessTokenExpiresAt.Format(time.RFC3339))
	}
	if !c.LastUpdated.IsZero() {
		fmt.Fprintf(w, "Last updated:  %s\n", c.LastUpdated.Format(time.RFC3339))
	}
}

func newCredentialsRefreshCmd() *cobra.Command {
	var cfg cliConfig

	cmd := &cobra.Command{
		Use:   "refresh <user-id>",
		Short: "Get a valid access token for a user, refreshing it if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loadCLIEnvVars(cmd, &cfg)

			ctx := cmd.Context()
			broker, store, err := openBroker(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer func() {
				broker.Close()
				_ = store.Close()
			}()

			tok, err := broker.GetActiveAccessToken(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if tok.Refreshed {
				fmt.Fprintf(out, "Refreshed access token for %s\n", tok.Email)
			} else {
				fmt.Fprintf(out, "Access token for %s is still valid\n", tok.Email)
			}
			fmt.Fprintf(out, "Expires: %s\n", tok.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}

	addCLIFlags(cmd, &cfg)
	return cmd
}

func newCredentialsKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a new base64 AES-256 key for CREDENTIAL_ENCRYPTION_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := credential.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), credential.KeyToBase64(key))
			return nil
		},
	}
}
