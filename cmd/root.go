package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "cantine",
	Short: "Face recognition access control for a school cafeteria",
	Long: `Cantine runs a cafeteria kiosk: students are enrolled with a photo, a camera
recognizes them at the entrance and the price of a meal is debited from their balance.

Settings come from the embedded defaults, an optional YAML file and environment
variables (a .env file in the working directory is loaded automatically).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file (overrides CANTINE_CONFIG)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
	if configFile != "" {
		os.Setenv("CANTINE_CONFIG", configFile)
	}
}
