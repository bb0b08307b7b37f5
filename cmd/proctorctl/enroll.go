package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newEnrollCmd(flags *globalFlags, build buildFunc) *cobra.Command {
	var fullName string
	cmd := &cobra.Command{
		Use:   "enroll --name <full name> <image>",
		Short: "Index a candidate's face and store their profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fullName == "" {
				return errors.New("--name is required")
			}
			image, err := readImage(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, flags, build, func(ctx context.Context, svc *service) error {
				token, err := svc.enroller.Enroll(ctx, image, fullName)
				if err != nil {
					return err
				}
				if flags.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), map[string]string{"ExternalImageId": token})
				}
				fmt.Fprintln(cmd.OutOrStdout(), passStyle.Render("✓")+" enrolled "+nameStyle.Render(fullName))
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("  identity token: ")+token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&fullName, "name", "", "candidate's full name")
	return cmd
}
