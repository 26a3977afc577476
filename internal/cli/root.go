package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// ErrRunFailed is returned when a run finished but did not pass.
var ErrRunFailed = errors.New("simulation failed")

// NewRootCmd builds the rhino command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "rhino",
		Short:   "Workflow-driven HTTP load generator",
		Version: version,
		Long: `Rhino drives HTTP load from a pool of simulated actors. Each actor runs
workflows (requests, assertions, loops, waits) read from a simulation file,
while the run is paced by ramp-up and throttle settings and bounded by a
duration or an execution count.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	return root
}

// Execute runs the root command with the process arguments.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil && !errors.Is(err, ErrRunFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}
