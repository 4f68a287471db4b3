package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shepherdwind/bean-talk/internal/cli"
	"github.com/shepherdwind/bean-talk/internal/config"
	"github.com/shepherdwind/bean-talk/internal/gmail"
)

func authCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail access",
		Long: `Authorize bean-talk to read and label your Gmail messages.

This command will:
1. Start a local web server for the OAuth callback
2. Print the Google consent URL to open in your browser
3. Save the token to gmail.token_path for serve and check`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadGmailConfig()
			if err != nil {
				return err
			}

			token, err := gmail.Authenticate(cmd.Context(), gmail.OAuth2Config{
				CredentialsFile: cfg.CredentialsPath,
				TokenFile:       cfg.TokenPath,
				CallbackAddr:    cfg.CallbackAddr,
			})
			if err != nil {
				return err
			}

			msg := "Gmail authorized, token saved to " + cfg.TokenPath
			if !token.Expiry.IsZero() {
				msg += fmt.Sprintf(" (access token valid until %s)", token.Expiry.Format("2006-01-02 15:04"))
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(msg))
			return nil
		},
	}
}
