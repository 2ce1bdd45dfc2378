package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "List available image operations",
	Long: `List the operations the controller accepts in structured pipelines,
including their parameters, defaults, and allowed ranges.`,
	Run: func(cmd *cobra.Command, args []string) {
		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the IMAGEFORGE_TOKEN environment variable")
			return
		}

		client := NewForgeClient(url, token)
		result, err := client.ListOperations()
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Request failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Request failed: %v\n", err)
			}
			return
		}

		for _, op := range result.Operations {
			name := op.Kind
			if op.RequiresInference {
				name += " (inference)"
			}
			cmd.Printf("%s%s%s  %s\n", colorBold, name, colorReset, op.Summary)

			for _, p := range op.Params {
				var notes []string
				if p.Required {
					notes = append(notes, "required")
				}
				if p.Default != nil {
					notes = append(notes, "default "+formatParamValue(p.Default))
				}
				if p.Min != nil || p.Max != nil {
					notes = append(notes, formatRange(p.Min, p.Max))
				}
				if len(p.Enum) > 0 {
					notes = append(notes, "one of "+strings.Join(p.Enum, "|"))
				}
				if len(notes) > 0 {
					cmd.Printf("  %s%-12s%s %s (%s)\n", colorDim, p.Name, colorReset, p.Type, strings.Join(notes, ", "))
				} else {
					cmd.Printf("  %s%-12s%s %s\n", colorDim, p.Name, colorReset, p.Type)
				}
			}
		}
	},
}

func formatParamValue(v any) string {
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}

func formatRange(min, max *float64) string {
	switch {
	case min != nil && max != nil:
		return fmt.Sprintf("%s..%s", formatParamValue(*min), formatParamValue(*max))
	case min != nil:
		return fmt.Sprintf(">= %s", formatParamValue(*min))
	default:
		return fmt.Sprintf("<= %s", formatParamValue(*max))
	}
}

func init() {
	rootCmd.AddCommand(opsCmd)
}
