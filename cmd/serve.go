package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP API and the refresh worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := s.resolve()
			if err != nil {
				return err
			}
			return appInstance.Run(cmd.Context())
		},
	}
}
