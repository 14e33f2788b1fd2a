package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect and manage the OAuth token state",
	}

	cmd.AddCommand(newTokenShowCmd())
	cmd.AddCommand(newTokenInvalidateCmd())

	return cmd
}

func newTokenShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show stored credential state (never the token values)",
		Args:  cobra.NoArgs,
		RunE:  runTokenShow,
	}
}

func runTokenShow(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	acct := a.cfg.Account.DefaultID

	cred, err := a.store.GetCredential(cmd.Context(), acct)
	if err != nil {
		return err
	}

	if cred == nil {
		statusf("No stored credential for account %s\n", acct)
		return nil
	}

	mode := "refresh_token"
	if cred.ServiceAccount {
		mode = "service_account"
	}

	fmt.Printf("Account:        %s\n", cred.AccountID)
	fmt.Printf("Mode:           %s\n", mode)
	fmt.Printf("Access token:   %s\n", presence(cred.AccessToken))
	fmt.Printf("Refresh token:  %s\n", presence(cred.RefreshToken))
	fmt.Printf("Expires:        %s\n", formatTimePtr(cred.ExpiresAt))
	fmt.Printf("Scopes:         %s\n", cred.Scopes)
	fmt.Printf("Updated:        %s\n", formatTime(cred.UpdatedAt))

	return nil
}

// presence reports whether a secret is stored without revealing it.
func presence(s string) string {
	if s == "" {
		return "(absent)"
	}

	return "(present)"
}

func newTokenInvalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate",
		Short: "Drop the cached access token so the next call refreshes",
		Args:  cobra.NoArgs,
		RunE:  runTokenInvalidate,
	}
}

func runTokenInvalidate(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	a.tokens.Invalidate(a.cfg.Account.DefaultID)

	// Also expire the persisted access token; the refresh token stays.
	cred, err := a.store.GetCredential(cmd.Context(), a.cfg.Account.DefaultID)
	if err != nil {
		return err
	}

	if cred != nil && cred.AccessToken != "" {
		cred.AccessToken = ""
		cred.ExpiresAt = nil

		if err := a.store.UpsertCredential(cmd.Context(), *cred); err != nil {
			return err
		}
	}

	statusf("Invalidated cached token for %s\n", a.cfg.Account.DefaultID)

	return nil
}
