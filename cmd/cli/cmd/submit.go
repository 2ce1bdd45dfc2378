package cmd

import (
	"imageforge/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var submitCmd = &cobra.Command{
	Use:   "submit [inputs...]",
	Short: "Submit a batch job",
	Long: `Queue a batch job that processes every input with the same pipeline.
All inputs are validated before anything is queued; one bad input rejects
the whole batch.

Example:
  forgectl submit /srv/uploads/a.png /srv/uploads/b.png --op resize:width=1200
  forgectl submit /srv/uploads/*.png --raw "-quality 75" --format jpeg`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		opSpecs, _ := flags.GetStringArray("op")
		raw, _ := flags.GetString("raw")
		format, _ := flags.GetString("format")
		quality, _ := flags.GetInt("quality")

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the IMAGEFORGE_TOKEN environment variable")
			return
		}

		if len(opSpecs) == 0 && raw == "" {
			cmd.Println("Error: either --op or --raw is required")
			return
		}
		if len(opSpecs) > 0 && raw != "" {
			cmd.Println("Error: --op and --raw are mutually exclusive")
			return
		}

		steps, err := parseSteps(opSpecs)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		client := NewForgeClient(url, token)
		result, err := client.SubmitJob(api.SubmitJobRequest{
			Inputs:       args,
			Pipeline:     steps,
			RawCommand:   raw,
			OutputFormat: format,
			Quality:      quality,
		})
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Submit failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Submit failed: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Job submitted!\nJob ID: %s\nItems: %d\n", result.JobID, result.Items)
	},
}

func init() {
	flags := submitCmd.Flags()
	flags.StringArray("op", nil, `pipeline step as "kind:key=value,key=value" (repeatable)`)
	flags.String("raw", "", "raw ImageMagick arguments (terminal mode)")
	flags.String("format", "", "output format (webp, png, jpeg, avif, ...)")
	flags.Int("quality", 0, "output quality 1-100")

	rootCmd.AddCommand(submitCmd)
}
