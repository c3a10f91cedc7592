package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Joseda-hg/taskflow/internal/calendar"
)

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Mirror scheduled tasks into Google Calendar",
}

var calendarAuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize access to Google Calendar and store the token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		creds, tokenPath := calendarPaths(env)
		oauthCfg, err := calendar.OAuthConfig(creds)
		if err != nil {
			return err
		}
		tok, err := calendar.Authorize(cmd.Context(), oauthCfg, cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := calendar.SaveToken(tokenPath, tok); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "token saved to %s\n", tokenPath)
		return nil
	},
}

var calendarSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push active scheduled tasks as calendar events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		creds, tokenPath := calendarPaths(env)
		oauthCfg, err := calendar.OAuthConfig(creds)
		if err != nil {
			return err
		}
		client, err := calendar.Client(ctx, oauthCfg, tokenPath)
		if err != nil {
			return err
		}
		events, err := calendar.NewGoogleEvents(ctx, client, env.cfg.Calendar.CalendarID)
		if err != nil {
			return err
		}

		res, err := calendar.NewSyncer(env.store, env.analyzer(), events, env.logger).Sync(ctx, env.cfg.OwnerID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "inserted %d, patched %d, unchanged %d\n", res.Inserted, res.Patched, res.Skipped)
		return nil
	},
}

func init() {
	calendarCmd.AddCommand(calendarAuthCmd, calendarSyncCmd)
}

// calendarPaths defaults both files to the config directory.
func calendarPaths(a *app) (string, string) {
	dir := filepath.Dir(a.cfgPath)
	creds := a.cfg.Calendar.CredentialsFile
	if creds == "" {
		creds = filepath.Join(dir, "credentials.json")
	}
	token := a.cfg.Calendar.TokenFile
	if token == "" {
		token = filepath.Join(dir, "calendar_token.json")
	}
	return creds, token
}
