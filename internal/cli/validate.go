package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/rhino/internal/config"
)

func newValidateCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a simulation file without running it",
		Long: `Parse, validate and compile a simulation file. Every workflow is built,
so definition errors (bad step combinations, invalid JSON schemas) are
reported the same way a run would report them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.Load(path)
			if err != nil {
				return err
			}
			c, err := config.Compile(f, zerolog.Nop())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d workflow(s), %d actor(s) - OK\n",
				f.Name, len(c.Workflows), len(c.Pool.Actors()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "config", "c", "", "Simulation file (YAML or JSON)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
