package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [dir...]",
		Short: "Remove build output and stamp files",
		Long: `Clean deletes the output directory and the stamp file of each source
directory, so the next build runs in full.`,
		RunE: runClean,
	}
}

func runClean(cmd *cobra.Command, args []string) error {
	dirs, err := sourceDirs(args)
	if err != nil {
		return err
	}
	s := newSession(cmd)

	for _, dir := range dirs {
		p, err := s.open(dir, projectOptions{})
		if err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
		if err := p.orchestrator.Clean(dir); err != nil {
			return err
		}
		s.log.WithField("source", dir).Debug("Cleaned")
		if !rootOpts.JSONOutput {
			fmt.Fprintf(stdoutOf(cmd), "Cleaned %s\n", p.orchestrator.OutputPath(dir))
		}
	}
	return nil
}
