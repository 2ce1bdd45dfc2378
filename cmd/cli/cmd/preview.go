package cmd

import (
	"imageforge/pkg/api"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the compiled command without running it",
	Long: `Compile a pipeline or raw command and print the resulting ImageMagick
invocation with placeholder input and output paths. Nothing is executed.

Example:
  forgectl preview --op resize:width=800,height=600 --op grayscale
  forgectl preview --raw "-colorspace Gray -quality 80"`,
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
		result, err := client.Preview(api.PreviewRequest{
			Pipeline:     steps,
			RawCommand:   raw,
			OutputFormat: format,
			Quality:      quality,
		})
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Preview rejected (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Preview failed: %v\n", err)
			}
			return
		}

		cmd.Println(result.Command)
	},
}

func init() {
	flags := previewCmd.Flags()
	flags.StringArray("op", nil, `pipeline step as "kind:key=value,key=value" (repeatable)`)
	flags.String("raw", "", "raw ImageMagick arguments (terminal mode)")
	flags.String("format", "", "output format (webp, png, jpeg, avif, ...)")
	flags.Int("quality", 0, "output quality 1-100")

	rootCmd.AddCommand(previewCmd)
}
