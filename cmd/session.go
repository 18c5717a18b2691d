package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/lifeassist/internal/clientsession"
)

func newRestoreCmd() *cobra.Command {
	var (
		cfg         cliConfig
		sessionFile string
		remember    string
	)

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore the local session without signing in again",
		Long: `Restore the session remembered in the local session file, the same way
the web client does on page load. The stored token is refreshed when it is
about to expire.

Use --remember <user-id> to point the session file at a user who signed in
through the web flow.`,
		Args: cobra.NoArgs,
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

			cache := clientsession.NewCache(clientsession.NewFileStorage(sessionFile), 0)
			if remember != "" {
				cred, err := broker.Profile(ctx, remember)
				if err != nil {
					return err
				}
				if err := cache.Remember(ctx, cred.UserID, cred.Email); err != nil {
					return fmt.Errorf("failed to write session file: %w", err)
				}
			}

			res, err := clientsession.NewRestorer(cache, broker, clientsession.RestorerConfig{}).Restore(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "State: %s\n", res.State)
			if res.Token != nil {
				fmt.Fprintf(out, "User: %s (%s)\n", res.Token.Email, res.Token.UserID)
			}
			return nil
		},
	}

	addCLIFlags(cmd, &cfg)
	cmd.Flags().StringVar(&sessionFile, "session-file", "", "Session file (default: "+clientsession.DefaultFilePath()+")")
	cmd.Flags().StringVar(&remember, "remember", "", "Remember this user id in the session file before restoring")
	return cmd
}

func newSignOutCmd() *cobra.Command {
	var (
		cfg         cliConfig
		sessionFile string
		revoke      bool
	)

	cmd := &cobra.Command{
		Use:   "signout",
		Short: "Sign out the local session",
		Long: `Forget the user remembered in the local session file so the next restore
stays signed out. With --revoke the Google grant is revoked as well and the
stored tokens are cleared.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cache := clientsession.NewCache(clientsession.NewFileStorage(sessionFile), 0)

			pointer, err := cache.Pointer(ctx)
			if err != nil {
				return fmt.Errorf("failed to read session file: %w", err)
			}
			if err := cache.Forget(ctx); err != nil {
				return fmt.Errorf("failed to write session file: %w", err)
			}

			out := cmd.OutOrStdout()
			if !revoke || pointer.LastUserID == "" {
				fmt.Fprintln(out, "Signed out")
				return nil
			}

			loadCLIEnvVars(cmd, &cfg)
			broker, store, err := openBroker(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer func() {
				broker.Close()
				_ = store.Close()
			}()

			if err := broker.EndSession(ctx, pointer.LastUserID); err != nil {
				return fmt.Errorf("signed out locally, but revoking the grant failed: %w", err)
			}
			fmt.Fprintln(out, "Signed out and revoked the Google grant")
			return nil
		},
	}

	addCLIFlags(cmd, &cfg)
	cmd.Flags().StringVar(&sessionFile, "session-file", "", "Session file (default: "+clientsession.DefaultFilePath()+")")
	cmd.Flags().BoolVar(&revoke, "revoke", false, "Also revoke the Google grant and clear the stored tokens")
	return cmd
}
