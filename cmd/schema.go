package cmd

import (
	"fmt"

	"github.com/grovetools/assetbuild/pkg/config"
	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the project config file",
		Long: `Print the JSON schema describing assetbuild.yml. Point your editor's YAML
language server at it for completion and validation.`,
		Example: `  assetbuild schema > assetbuild.schema.json`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.SchemaJSON()
			if err != nil {
				return fmt.Errorf("failed to generate schema: %w", err)
			}
			_, err = fmt.Fprintln(stdoutOf(cmd), string(data))
			return err
		},
	}
}
