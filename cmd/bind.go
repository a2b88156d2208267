package cmd

import (
	"fmt"

	"github.com/grovetools/assetbuild/pkg/asset"
	"github.com/spf13/cobra"
)

var (
	bindTarget string
	bindStage  string
)

func newBindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bind [dir]",
		Short: "Build a source directory and print its deployable code location",
		Long: `Bind resolves a source directory into a code location: it builds the
source if needed, then prints the output directory and a content hash of
its files. Deployment tooling consumes the JSON form.`,
		Example: `  assetbuild bind functions/orders --target OrdersFn --json`,
		Args:    cobra.MaximumNArgs(1),
		RunE:    runBind,
	}
	cmd.Flags().StringVar(&bindTarget, "target", "", "Name of the deployment target")
	cmd.Flags().StringVar(&bindStage, "stage", "", "Deployment stage")
	return cmd
}

func runBind(cmd *cobra.Command, args []string) error {
	dirs, err := sourceDirs(args)
	if err != nil {
		return err
	}
	s := newSession(cmd)
	p, err := s.open(dirs[0], projectOptions{})
	if err != nil {
		return err
	}

	code := asset.FromSource(p.dir, p.orchestrator)
	code.Policy = p.cfg.Policy()
	code.Logger = s.log

	loc, err := code.Bind(cmd.Context(), asset.Target{Name: bindTarget, Stage: bindStage})
	if err != nil {
		return err
	}

	if rootOpts.JSONOutput {
		return writeJSON(stdoutOf(cmd), loc)
	}
	fmt.Fprintf(stdoutOf(cmd), "%s\n", loc.Path)
	fmt.Fprintf(stdoutOf(cmd), "sha256:%s\n", loc.Hash)
	return nil
}
