package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/grovetools/assetbuild/pkg/freshness"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [dir...]",
		Short: "Show whether source directories need a rebuild",
		Long: `Status runs the freshness check without building anything and reports
why each directory would or would not be rebuilt.`,
		Example: `  assetbuild status functions/*`,
		RunE:    runStatus,
	}
}

type statusEntry struct {
	SourceDir   string           `json:"source_dir"`
	Required    bool             `json:"required"`
	Reason      freshness.Reason `json:"reason"`
	ChangedFile string           `json:"changed_file,omitempty"`
	StampTime   string           `json:"stamp_time,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	dirs, err := sourceDirs(args)
	if err != nil {
		return err
	}
	s := newSession(cmd)

	entries := make([]statusEntry, 0, len(dirs))
	for _, dir := range dirs {
		p, err := s.open(dir, projectOptions{})
		if err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
		d, err := p.orchestrator.Plan(dir)
		if err != nil {
			return err
		}
		e := statusEntry{
			SourceDir:   dir,
			Required:    d.Required,
			Reason:      d.Reason,
			ChangedFile: d.ChangedFile,
		}
		if !d.StampTime.IsZero() {
			e.StampTime = d.StampTime.Format("2006-01-02 15:04:05")
		}
		entries = append(entries, e)
	}

	if rootOpts.JSONOutput {
		return writeJSON(stdoutOf(cmd), entries)
	}

	w := tabwriter.NewWriter(stdoutOf(cmd), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tSTATE\tREASON\tCHANGED")
	for _, e := range entries {
		state := "fresh"
		if e.Required {
			state = "stale"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.SourceDir, state, e.Reason, e.ChangedFile)
	}
	return w.Flush()
}
