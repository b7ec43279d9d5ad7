package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

func newRefreshCmd(s *session) *cobra.Command {
	var profileID string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Scrapes every tracked profile once and records the results",
		Long: `Runs a refresh job in the foreground: every tracked profile (or only
--profile) is scraped sequentially with the configured delay, successful
results are stored, and the finished job with its batch report is printed
as JSON. The command fails when the job does not succeed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := s.resolve()
			if err != nil {
				return err
			}
			var job tracker.Job
			if profileID != "" {
				job, err = appInstance.RefreshProfile(cmd.Context(), profileID)
			} else {
				job, err = appInstance.RefreshAll(cmd.Context())
			}
			if err != nil {
				return err
			}
			if err := printJSON(cmd, job); err != nil {
				return err
			}
			if job.Status != tracker.JobStatusSucceeded {
				return fmt.Errorf("refresh job %s finished with status %s: %s", job.ID, job.Status, job.ErrorText)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profileID, "profile", "", "refresh a single profile by ID")
	return cmd
}
