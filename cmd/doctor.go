package cmd

import (
	"fmt"

	"github.com/grovetools/assetbuild/pkg/manifest"
	"github.com/grovetools/assetbuild/pkg/toolchain"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor [dir]",
		Short: "Check the toolchain and the package.json engines constraints",
		Long: `Doctor reports the node and installer versions found on PATH (including
the configured extra path directories) and checks them against the engines
field of package.json.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runDoctor,
	}
}

type doctorReport struct {
	SourceDir string            `json:"source_dir"`
	Config    string            `json:"config,omitempty"`
	Installer string            `json:"installer"`
	Compiler  string            `json:"compiler"`
	Versions  map[string]string `json:"versions"`
	Engines   map[string]string `json:"engines,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	dirs, err := sourceDirs(args)
	if err != nil {
		return err
	}
	dir := dirs[0]
	s := newSession(cmd)

	p, err := s.open(dir, projectOptions{})
	if err != nil {
		return err
	}
	tc := p.cfg.Toolchain()

	env, err := p.cfg.Env(dir)
	if err != nil {
		return err
	}
	runner := newRunner(&toolchain.RunOptions{ExtraPathDirs: p.cfg.Path, Env: env})

	v, err := tc.Versions(cmd.Context(), runner, dir)
	if err != nil {
		return err
	}
	report := doctorReport{
		SourceDir: dir,
		Config:    p.cfg.Source,
		Installer: tc.Installer,
		Compiler:  tc.Compiler,
		Versions:  tc.Engines(v),
	}

	var checkErr error
	if manifest.Exists(dir) {
		pkg, err := manifest.Load(dir)
		if err != nil {
			return err
		}
		report.Engines = pkg.Engines
		checkErr = manifest.CheckEngines(pkg, report.Versions)
		if checkErr != nil {
			report.Error = checkErr.Error()
		}
	}

	if rootOpts.JSONOutput {
		if err := writeJSON(stdoutOf(cmd), report); err != nil {
			return err
		}
		return checkErr
	}

	out := stdoutOf(cmd)
	fmt.Fprintf(out, "Source:    %s\n", report.SourceDir)
	if report.Config != "" {
		fmt.Fprintf(out, "Config:    %s\n", report.Config)
	}
	fmt.Fprintf(out, "Compiler:  %s\n", report.Compiler)
	fmt.Fprintf(out, "node:      %s\n", v.Node)
	fmt.Fprintf(out, "%-10s %s\n", tc.Installer+":", v.Installer)
	for engine, constraint := range report.Engines {
		fmt.Fprintf(out, "engines.%s: %s\n", engine, constraint)
	}
	if checkErr != nil {
		return checkErr
	}
	fmt.Fprintln(out, "OK")
	return nil
}
