package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newScrapeCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "scrape <profile-url>",
		Short: "Scrapes one profile page and prints the outcome without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := s.resolve()
			if err != nil {
				return err
			}
			outcome := appInstance.ScrapeURL(cmd.Context(), args[0])
			if err := printJSON(cmd, outcome); err != nil {
				return err
			}
			if !outcome.OK() {
				return fmt.Errorf("scrape failed: %s", outcome.Kind())
			}
			return nil
		},
	}
}
