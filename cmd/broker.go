package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/teemow/lifeassist/internal/credential"
	"github.com/teemow/lifeassist/internal/google"
	"github.com/teemow/lifeassist/internal/session"
)

// cliConfig is the subset of the server settings the offline commands need
// to reach the credential store and Google.
type cliConfig struct {
	Google  GoogleConfig
	Storage StorageConfig
}

func addCLIFlags(cmd *cobra.Command, cfg *cliConfig) {
	addGoogleFlags(cmd, &cfg.Google)
	addStorageFlags(cmd, &cfg.Storage)
}

func loadCLIEnvVars(cmd *cobra.Command, cfg *cliConfig) {
	loadGoogleEnvVars(cmd, &cfg.Google)
	loadStorageEnvVars(cmd, &cfg.Storage)
}

// openStore opens the configured credential store.
func openStore(ctx context.Context, cfg StorageConfig) (credential.Store, error) {
	credCfg, err := cfg.CredentialConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid credential encryption settings: %w", err)
	}
	credCfg.Logger = slog.Default()
	return credential.Open(ctx, credCfg)
}

// openBroker opens the store and builds a broker over it. The caller closes
// both.
func openBroker(ctx context.Context, cfg cliConfig, revokeOnSignOut bool) (*session.Broker, credential.Store, error) {
	if cfg.Google.ClientID == "" || cfg.Google.ClientSecret == "" {
		return nil, nil, fmt.Errorf("google client id and secret are required (--google-client-id/--google-client-secret or GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET)")
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, err
	}

	httpClient := google.NewHTTPClient(google.DefaultHTTPTimeout)
	oauthConfig := google.NewOAuth2Config(google.OAuthConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		Scopes:       cfg.Google.Scopes,
	})

	broker, err := session.NewBroker(session.Config{
		OAuth2:          oauthConfig,
		Store:           store,
		Refresher:       google.NewOAuthRefresher(oauthConfig, httpClient, nil),
		Profiles:        google.NewUserinfoFetcher(httpClient, nil),
		Revoker:         google.NewHTTPRevoker(httpClient, nil),
		HTTPClient:      httpClient,
		RevokeOnSignOut: revokeOnSignOut,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to create session broker: %w", err)
	}
	return broker, store, nil
}
