// Package cmd assembles the command line interface.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/birdsearch-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "birdsearch",
		Short: "Bird species search service",
		Long:  "Locates bird species near a point, resolves species names from partial input, and serves the species list with images over HTTP.",
		RunE: func(cmd *cobra.Command, args []string) error {
			// bare invocation serves, same as the serve subcommand
			return runServe(cmd.Context(), settings)
		},
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(serveCommand(settings))

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Main.Port, "port", settings.Main.Port, "HTTP listen port")
	rootCmd.PersistentFlags().Float64Var(&settings.Home.Latitude, "latitude", settings.Home.Latitude, "Home latitude for species search and caching")
	rootCmd.PersistentFlags().Float64Var(&settings.Home.Longitude, "longitude", settings.Home.Longitude, "Home longitude for species search and caching")
}
