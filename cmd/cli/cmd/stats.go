package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue depth across all jobs",
	Long:  `Show pending, running, and settled item counts across the whole queue. Requires an admin API key.`,
	Run: func(cmd *cobra.Command, args []string) {
		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the IMAGEFORGE_TOKEN environment variable")
			return
		}

		client := NewForgeClient(url, token)
		result, err := client.QueueStats()
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Request failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Request failed: %v\n", err)
			}
			return
		}

		cmd.Printf("%sQueue%s\n", colorBold, colorReset)
		cmd.Printf("%sPending:%s %d\n", colorDim, colorReset, result.Pending)
		cmd.Printf("%sRunning:%s %d\n", colorDim, colorReset, result.Running)
		cmd.Printf("%sSettled:%s %d\n", colorDim, colorReset, result.Settled)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
