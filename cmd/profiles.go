package cmd

import (
	"github.com/spf13/cobra"
)

func newProfilesCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manages tracked profiles",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <name> <profile-url>",
			Short: "Starts tracking a profile",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				appInstance, err := s.resolve()
				if err != nil {
					return err
				}
				profile, err := appInstance.AddProfile(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd, profile)
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Lists tracked profiles with their latest follower count",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				appInstance, err := s.resolve()
				if err != nil {
					return err
				}
				profiles, err := appInstance.Profiles().ListProfiles(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, profiles)
			},
		},
	)
	return cmd
}
