package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "forgectl",
	Short: "Forgectl is a command line tool for interacting with the imageforge service",
	Long: `forgectl is the command-line interface for the imageforge batch image
processing service.

imageforge compiles validated processing pipelines into ImageMagick commands
and executes them inside a sandbox. Single images run synchronously; batches
are queued as jobs and processed by workers.

Common workflows:

  List available operations:
    forgectl ops

  Preview a compiled command without running it:
    forgectl preview --op resize:width=800,height=600

  Process a single image synchronously:
    forgectl run /srv/uploads/cat.png --op grayscale --format webp

  Submit a batch job:
    forgectl submit /srv/uploads/a.png /srv/uploads/b.png --op "resize:width=1200"

  Check job status:
    forgectl status <job-id>

  Download the result archive:
    forgectl download <job-id> --output results.zip

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    IMAGEFORGE_URL      API endpoint (default: http://localhost:6161)
    IMAGEFORGE_TOKEN    API key for authentication`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".forgectl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".forgectl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "IMAGEFORGE_VARNAME"
	viper.SetEnvPrefix("IMAGEFORGE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.forgectl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "imageforge Controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "API key for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
