package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newVerifyCmd(flags *globalFlags, build buildFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <image>",
		Short: "Run every check against an image and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := readImage(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, flags, build, func(ctx context.Context, svc *service) error {
				result, err := svc.verifier.Verify(ctx, image)
				if err != nil {
					return err
				}
				if flags.jsonOutput {
					if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
						return err
					}
				} else {
					renderReport(cmd.OutOrStdout(), args[0], result)
				}
				if !result.Passed() {
					return errReportFailed
				}
				return nil
			})
		},
	}
}
