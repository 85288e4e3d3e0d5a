// Package cli holds the socketapi command tree.
package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand builds the command tree around its own viper instance so
// that several trees can coexist in tests.
func NewRootCommand() *cobra.Command {
	var cfgFilePath string
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "socketapi",
		Short: "socketapi serves live resources over websockets",
		Long: `socketapi is a real-time resource server. Clients create, patch and delete
resources addressed by URI and subscribe to items or whole collections to
receive every change as it happens.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgFilePath, "config", "", "config file (default is $HOME/.socketapi.yaml)")

	rootCmd.AddCommand(newServeCommand(v, &cfgFilePath))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
