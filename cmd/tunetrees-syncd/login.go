package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

// newLoginCmd implements the dev-only device-code login flow spec.md §6.5
// assumes an external identity provider performs before the replication
// core ever sees a user id. There is no such provider here, so this talks
// to a stub device-authorization endpoint and prints the opaque user id
// callers pass to `serve --user` and `sync.Engine.BeginSession`.
//
// Grounded on the teacher pack's own OAuth2 usage in
// desertthunder-ytx/cmd/spotify.go (doOAuth): open a browser/print a URL,
// poll for completion, surface the resulting token. That flow drives an
// authorization-code exchange against a local callback server; this one
// drives oauth2's DeviceAuth flow instead, since a syncd daemon has no
// browser-reachable redirect URI of its own.
func newLoginCmd() *cobra.Command {
	var issuerURL, clientID string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Obtain a user id via the dev identity provider's device-code flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			if issuerURL == "" {
				return fmt.Errorf("login: --issuer is required in this dev build (no default identity provider)")
			}

			cfg := &oauth2.Config{
				ClientID: clientID,
				Endpoint: oauth2.Endpoint{
					DeviceAuthURL: issuerURL + "/device/code",
					TokenURL:      issuerURL + "/token",
				},
				Scopes: []string{"tunetrees:sync"},
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			resp, err := cfg.DeviceAuth(ctx)
			if err != nil {
				return fmt.Errorf("login: request device code: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "To authorize this device, visit:\n\n    %s\n\n", resp.VerificationURI)
			if resp.UserCode != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "and enter code: %s\n\n", resp.UserCode)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Waiting for authorization...")

			token, err := cfg.DeviceAccessToken(ctx, resp)
			if err != nil {
				return fmt.Errorf("login: poll for token: %w", err)
			}

			userID, ok := token.Extra("user_id").(string)
			if !ok || userID == "" {
				return fmt.Errorf("login: token response missing user_id claim")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Authorized. Start syncing with:\n\n    tunetrees-syncd serve --user %s\n", userID)
			return nil
		},
	}

	cmd.Flags().StringVar(&issuerURL, "issuer", "", "dev identity provider base URL")
	cmd.Flags().StringVar(&clientID, "client-id", "tunetrees-syncd", "OAuth2 client id registered with the dev identity provider")

	return cmd
}
