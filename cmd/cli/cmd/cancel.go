package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [job_id]",
	Short: "Cancel a batch job",
	Long: `Cancel the pending items of a job. Items that are already running
finish normally; their results stay available.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the IMAGEFORGE_TOKEN environment variable")
			return
		}

		client := NewForgeClient(url, token)
		result, err := client.CancelJob(jobID)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Cancel failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Cancel failed: %v\n", err)
			}
			return
		}

		if result.Cancelled {
			cmd.Printf("✓ Job cancelled\nStatus: %s\n", result.Status)
		} else {
			cmd.Printf("Job was not cancelled, status: %s\n", result.Status)
		}
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
