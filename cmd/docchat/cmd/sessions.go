package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"docchat/internal/session"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List chat sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := session.NewStore(cfg.Paths.SessionsDir, nil)
			if err != nil {
				return err
			}

			summaries, err := store.List()
			if err != nil {
				return err
			}

			if len(summaries) == 0 {
				fmt.Println("No sessions")
				return nil
			}

			for _, s := range summaries {
				fmt.Printf("%s  %s\n", s.ID, s.Title)
			}
			return nil
		},
	}

	return cmd
}
