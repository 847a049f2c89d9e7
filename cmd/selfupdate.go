package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// updateRepo is the GitHub repository releases are fetched from.
const updateRepo = "giantswarm/mcp-azure-devops"

// newSelfUpdateCmd creates the selfupdate command
func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selfupdate",
		Short: "Update mcp-azure-devops to the latest version",
		Long: `Check GitHub releases for a newer version of mcp-azure-devops and replace
the running binary with it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSelfUpdate(cmd.Context())
		},
	}
}

func runSelfUpdate(ctx context.Context) error {
	log := newCLILogger()

	if version == "" || version == "dev" {
		return errors.New("selfupdate is not available for development builds")
	}

	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(updateRepo))
	if err != nil {
		return fmt.Errorf("error occurred while detecting version: %w", err)
	}
	if !found {
		return fmt.Errorf("latest version could not be found from repository %s", updateRepo)
	}

	if latest.LessOrEqual(version) {
		log.Info("Current version (%s) is the latest", version)
		return nil
	}

	log.Info("Updating to version %s...", latest.Version())

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("error occurred while updating binary: %w", err)
	}

	log.Success("Successfully updated to version %s", latest.Version())
	return nil
}
