package main

import (
	"github.com/spf13/cobra"

	"state-connector/config"
)

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "state-connector",
		Short:         "Attests external payment chains to the state connector contract",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath, "path to the config file")

	root.AddCommand(
		newServeCmd(&cfgPath),
		newAttestCmd(&cfgPath),
		newProveCmd(&cfgPath),
		newVerifyCmd(&cfgPath),
	)
	return root
}
