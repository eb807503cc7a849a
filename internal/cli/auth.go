package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jmelchner/applyflow/internal/auth"
	"github.com/jmelchner/applyflow/internal/store"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication",
	Long: `Manage authentication against the orchestrator.

Subcommands:
  login   Store a session token (prompted, hidden input)
  status  Show the configured token's claims and expiry
  verify  Verify an extension token with the server

Examples:
  applyflow auth login
  applyflow auth status
  applyflow auth verify <extension-token>`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a session token",
	RunE:  runAuthLogin,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the configured token's claims and expiry",
	RunE:  runAuthStatus,
}

var authVerifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Verify an extension token with the server",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthVerify,
}

func init() {
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authVerifyCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	fmt.Print("Token: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return errors.New("empty token")
	}

	if info, err := auth.Inspect(token); err == nil && info.Expired(time.Now()) {
		fmt.Printf("Warning: token expired at %s\n", info.ExpiresAt.Format(time.RFC3339))
	}

	st, err := openCache(ctx)
	if err != nil {
		return err
	}
	if err := st.SetSetting(ctx, store.SettingSessionToken, token); err != nil {
		return err
	}

	fmt.Println("Token stored.")
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	info, err := auth.Inspect(cfg.Token)
	if err != nil {
		if errors.Is(err, auth.ErrNoToken) {
			fmt.Println("No token configured.")
			return nil
		}
		// Opaque tokens are fine; we just can't show claims.
		fmt.Println("Token configured (not a JWT, no claims to show).")
		return nil
	}

	if info.Subject != "" {
		fmt.Printf("Subject:  %s\n", info.Subject)
	}
	if info.Email != "" {
		fmt.Printf("Email:    %s\n", info.Email)
	}
	if !info.IssuedAt.IsZero() {
		fmt.Printf("Issued:   %s\n", info.IssuedAt.Format(time.RFC3339))
	}
	if !info.ExpiresAt.IsZero() {
		fmt.Printf("Expires:  %s", info.ExpiresAt.Format(time.RFC3339))
		if info.Expired(time.Now()) {
			fmt.Print("  (EXPIRED)")
		}
		fmt.Println()
	}
	return nil
}

func runAuthVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	token := args[0]

	result, err := apiClient.VerifyExtensionToken(ctx, token)
	if err != nil {
		return err
	}
	if !result.Valid {
		return errors.New("token is not valid")
	}

	fmt.Print("Token is valid")
	if result.UserEmail != "" {
		fmt.Printf(" for %s", result.UserEmail)
	}
	if !result.ExpiresAt.IsZero() {
		fmt.Printf(" (expires %s)", result.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Println()

	if st, err := openCache(ctx); err == nil {
		if err := st.SetSetting(ctx, store.SettingExtensionToken, token); err != nil {
			logger.Warn("failed to store extension token", "error", err)
		}
	}
	return nil
}
