package main

import (
	"io"
	"os"

	"ipinfo-probe/core/internal/cli"
	"ipinfo-probe/core/internal/report"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code. Any
// failure is reported as an error document on stdout.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := cli.NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		_ = report.WriteError(stdout, err)
		return 1
	}
	return 0
}
