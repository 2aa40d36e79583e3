package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	var wipe bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Reconcile the index with the files directory",
		Long: `Runs one reconciliation pass: files added to the files directory
get indexed, files removed from it get dropped from the index.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if wipe {
				if err := a.engine.Wipe(); err != nil {
					return err
				}
				fmt.Println("Index wiped")
			}

			result, err := a.engine.Reconcile(cmd.Context())
			if err != nil {
				return err
			}

			if !result.Changed() {
				fmt.Println("Index is up to date")
				return nil
			}

			fmt.Printf("Indexed %d file(s), removed %d file(s), %d chunk(s) total\n",
				len(result.Added), len(result.Removed), a.engine.ChunkCount())
			return nil
		},
	}

	cmd.Flags().BoolVar(&wipe, "wipe", false, "Wipe the index before reconciling (forces a full rebuild)")

	return cmd
}
