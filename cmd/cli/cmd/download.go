package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var downloadCmd = &cobra.Command{
	Use:   "download [job_id]",
	Short: "Download the result archive of a finished job",
	Long: `Download the zip archive containing every successful output of a
finished job plus its manifest. Archives expire after the retention
window; an expired archive returns 410 Gone.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]

		flags := cmd.Flags()
		output, _ := flags.GetString("output")
		if output == "" {
			output = fmt.Sprintf("%s.zip", jobID)
		}

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the IMAGEFORGE_TOKEN environment variable")
			return
		}

		client := NewForgeClient(url, token)
		written, err := client.DownloadJob(jobID, output)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Download failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Download failed: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Archive saved!\nFile: %s\nSize: %s\n", output, formatBytes(written))
	},
}

func init() {
	downloadCmd.Flags().StringP("output", "o", "", "destination file (default <job_id>.zip)")

	rootCmd.AddCommand(downloadCmd)
}
