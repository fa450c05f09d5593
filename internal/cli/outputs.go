package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var (
	outputsStack string
	outputsFile  string
)

var stackOutputsCmd = &cobra.Command{
	Use:   "stack-outputs",
	Short: "Print the outputs of a CloudFormation stack",
	Args:  cobra.NoArgs,
	RunE:  runStackOutputs,
}

func init() {
	stackOutputsCmd.Flags().StringVar(&outputsStack, "stack", "", "stack name (default from config)")
	stackOutputsCmd.Flags().StringVarP(&outputsFile, "out", "o", "", "also write the outputs to this JSON file")
	rootCmd.AddCommand(stackOutputsCmd)
}

func runStackOutputs(cmd *cobra.Command, _ []string) error {
	if services == nil || services.Outputs == nil {
		return errors.New("stack outputs not configured")
	}

	stack := firstNonEmpty(outputsStack, defaults.StackName)
	outputs, err := services.Outputs.StackOutputs(cmd.Context(), stack)
	if err != nil {
		return fmt.Errorf("stack outputs failed: %w", err)
	}

	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Printf("  %s = %s\n", k, outputs[k])
	}

	if outputsFile == "" {
		return nil
	}
	data, err := json.MarshalIndent(outputs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal outputs: %w", err)
	}
	if err := os.WriteFile(outputsFile, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outputsFile, err)
	}
	cmd.Printf("Wrote %s.\n", outputsFile)
	return nil
}
