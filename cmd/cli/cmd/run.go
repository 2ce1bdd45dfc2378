package cmd

import (
	"imageforge/pkg/api"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run [input]",
	Short: "Process a single image synchronously",
	Long: `Process one image and wait for the result. The input path must live
under a directory the controller is allowed to read.

Example:
  forgectl run /srv/uploads/cat.png --op resize:width=800 --format webp
  forgectl run /srv/uploads/cat.png --raw "-colorspace Gray"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		input := args[0]

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
		result, err := client.Run(api.RunRequest{
			Input:        input,
			Pipeline:     steps,
			RawCommand:   raw,
			OutputFormat: format,
			Quality:      quality,
		})
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Run failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Run failed: %v\n", err)
			}
			return
		}

		duration := time.Duration(result.DurationMs) * time.Millisecond
		cmd.Printf("✓ Processed!\nOutput: %s\nSize: %s\nDuration: %s\n",
			result.Output, formatBytes(result.Size), formatDuration(duration))
	},
}

func init() {
	flags := runCmd.Flags()
	flags.StringArray("op", nil, `pipeline step as "kind:key=value,key=value" (repeatable)`)
	flags.String("raw", "", "raw ImageMagick arguments (terminal mode)")
	flags.String("format", "", "output format (webp, png, jpeg, avif, ...)")
	flags.Int("quality", 0, "output quality 1-100")

	rootCmd.AddCommand(runCmd)
}
