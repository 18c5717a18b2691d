package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the lifeassist application
var rootCmd = &cobra.Command{
	Use:   "lifeassist",
	Short: "Personal assistant backend with Google sign-in and calendar tools",
	Long: `lifeassist keeps users signed in with Google, refreshes their tokens in
the background and gives an AI assistant access to their calendar.

It can run as:
  - An HTTP server for the web client, including an MCP endpoint
  - An MCP server over stdio for a single local user`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadDotEnv()
	},
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "lifeassist version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCredentialsCmd())
	rootCmd.AddCommand(newRestoreCmd())
	rootCmd.AddCommand(newSignOutCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
