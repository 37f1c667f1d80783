package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/carbon-drive/3d-mapping/internal/mesh"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.obj>",
		Short: "Print vertex and face counts of a mesh",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			vertices, faces, err := mesh.Stats(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "vertices: %d\nfaces: %d\n", vertices, faces)
			return nil
		},
	}
}
