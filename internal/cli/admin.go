package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative operations",
	Long: `Administrative operations. These require an admin account.

Subcommands:
  users         List all accounts
  stats         Show server usage counters
  subscription  Change a user's subscription plan

Examples:
  applyflow admin users
  applyflow admin stats
  applyflow admin subscription 42 pro`,
}

var adminUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "List all accounts",
	RunE:  runAdminUsers,
}

var adminStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server usage counters",
	RunE:  runAdminStats,
}

var adminSubscriptionCmd = &cobra.Command{
	Use:   "subscription <user-id> <plan>",
	Short: "Change a user's subscription plan",
	Args:  cobra.ExactArgs(2),
	RunE:  runAdminSubscription,
}

func init() {
	adminCmd.AddCommand(adminUsersCmd)
	adminCmd.AddCommand(adminStatsCmd)
	adminCmd.AddCommand(adminSubscriptionCmd)
}

func runAdminUsers(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireToken(); err != nil {
		return err
	}

	users, err := apiClient.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("No users.")
		return nil
	}
	for _, u := range users {
		fmt.Printf("%-12s %-32s %-10s %s\n", u.ID, u.Email, u.Subscription, u.CreatedAt.Format("2006-01-02"))
	}
	return nil
}

func runAdminStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireToken(); err != nil {
		return err
	}

	stats, err := apiClient.GetAdminStats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Users:          %d\n", stats.Users)
	fmt.Printf("Pages:          %d\n", stats.Pages)
	fmt.Printf("Messages:       %d\n", stats.Messages)
	fmt.Printf("PDFs generated: %d\n", stats.PDFsGenerated)
	return nil
}

func runAdminSubscription(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireToken(); err != nil {
		return err
	}

	if err := apiClient.UpdateSubscription(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Updated subscription for %s to %s\n", args[0], args[1])
	return nil
}
