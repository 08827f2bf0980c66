package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pwsvc/internal/config"
	"pwsvc/internal/logging"
	"pwsvc/internal/onedrive"
)

var authWait time.Duration

// authCmd runs the one-time authorization code flow.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Obtain a OneDrive refresh token",
	Long: `Opens the Microsoft sign-in flow for the registered application and prints the
refresh token to store as REFRESH_TOKEN. Requires APPLICATION_ID and CLIENT_SECRET;
the application's redirect URI must match onedrive.redirect_url
(default http://localhost:8000).`,
	RunE: runAuth,
}

func init() {
	authCmd.Flags().DurationVar(&authWait, "wait", 5*time.Minute, "How long to wait for the browser callback")
}

func runAuth(cmd *cobra.Command, args []string) error {
	if cfg.OneDrive.ApplicationID == "" || cfg.OneDrive.ClientSecret == "" {
		return fail(fmt.Errorf("%w: APPLICATION_ID, CLIENT_SECRET", config.ErrMissingEnv))
	}

	flow, err := onedrive.StartAuth(oneDriveCredentials())
	if err != nil {
		return fail(err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Open this URL in a browser and sign in:")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  "+flow.URL)
	fmt.Fprintln(out)

	ctx, cancel := context.WithTimeout(cmd.Context(), authWait)
	defer cancel()

	code, err := flow.WaitForCode(ctx, logging.For(logger, logging.CategoryOneDrive))
	if err != nil {
		return fail(fmt.Errorf("authorization failed: %w", err))
	}
	tok, err := flow.Exchange(ctx, code)
	if err != nil {
		return fail(err)
	}

	fmt.Fprintln(out, styles.Success.Render("Authorization complete."))
	fmt.Fprintln(out, "Set this value as REFRESH_TOKEN:")
	fmt.Fprintln(out)
	fmt.Fprintln(out, tok.RefreshToken)
	return nil
}
