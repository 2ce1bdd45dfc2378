package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var resubmitCmd = &cobra.Command{
	Use:   "resubmit [job_id]",
	Short: "Retry the failed items of a finished job",
	Long: `Create a new job from the failed items of a finished one. The new job
inherits the original pipeline and output settings; succeeded items are
not rerun.`,
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
		result, err := client.ResubmitJob(jobID)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Resubmit failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Resubmit failed: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Failed items resubmitted!\nNew Job ID: %s\nItems: %d\n", result.JobID, result.Items)
	},
}

func init() {
	rootCmd.AddCommand(resubmitCmd)
}
