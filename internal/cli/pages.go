package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmelchner/applyflow/internal/models"
)

var (
	pagesCached bool
	pagesForce  bool
)

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "Manage conversation pages",
	Long: `Manage conversation pages on the orchestrator.

Subcommands:
  list    List pages (default)
  show    Show a page and its message history
  rename  Rename a page
  delete  Delete a page and all of its messages

Examples:
  applyflow pages
  applyflow pages list --cached
  applyflow pages show 4f2a
  applyflow pages rename 4f2a "Backend engineer cover letter"
  applyflow pages delete 4f2a --force`,
	RunE: runPagesList,
}

var pagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pages",
	RunE:  runPagesList,
}

var pagesShowCmd = &cobra.Command{
	Use:   "show <page-id>",
	Short: "Show a page and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runPagesShow,
}

var pagesRenameCmd = &cobra.Command{
	Use:   "rename <page-id> <title>",
	Short: "Rename a page",
	Args:  cobra.ExactArgs(2),
	RunE:  runPagesRename,
}

var pagesDeleteCmd = &cobra.Command{
	Use:   "delete <page-id>",
	Short: "Delete a page and all of its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runPagesDelete,
}

func init() {
	pagesCmd.Flags().BoolVar(&pagesCached, "cached", false, "list from the local cache without contacting the server")
	pagesListCmd.Flags().BoolVar(&pagesCached, "cached", false, "list from the local cache without contacting the server")
	pagesDeleteCmd.Flags().BoolVarP(&pagesForce, "force", "f", false, "skip confirmation")

	pagesCmd.AddCommand(pagesListCmd)
	pagesCmd.AddCommand(pagesShowCmd)
	pagesCmd.AddCommand(pagesRenameCmd)
	pagesCmd.AddCommand(pagesDeleteCmd)
}

func runPagesList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if pagesCached {
		st, err := openCache(ctx)
		if err != nil {
			return err
		}
		pages, err := st.ListPages(ctx)
		if err != nil {
			return fmt.Errorf("list cached pages: %w", err)
		}
		printPages(pages)
		return nil
	}

	if err := requireToken(); err != nil {
		return err
	}
	pages, err := apiClient.ListPages(ctx)
	if err != nil {
		return err
	}

	// Refresh the cache so --cached stays useful offline.
	if st, err := openCache(ctx); err == nil {
		for _, p := range pages {
			if err := st.UpsertPage(ctx, p); err != nil {
				logger.Warn("failed to cache page", "page_id", p.ID, "error", err)
			}
		}
	}

	printPages(pages)
	return nil
}

func printPages(pages []models.Page) {
	if len(pages) == 0 {
		fmt.Println("No pages.")
		return
	}
	for _, p := range pages {
		fmt.Printf("%-12s %-40s %s\n", p.ID, p.Title, p.UpdatedAt.Format("2006-01-02 15:04"))
	}
}

func runPagesShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireToken(); err != nil {
		return err
	}

	page, err := apiClient.GetPage(ctx, args[0])
	if err != nil {
		return err
	}
	msgs, err := apiClient.ListMessages(ctx, page.ID)
	if err != nil {
		return err
	}

	if st, err := openCache(ctx); err == nil {
		if err := st.UpsertPage(ctx, *page); err == nil {
			if err := st.ReplaceMessages(ctx, page.ID, msgs); err != nil {
				logger.Warn("failed to cache messages", "page_id", page.ID, "error", err)
			}
		}
	}

	fmt.Printf("%s  %s  (updated %s)\n\n", page.ID, page.Title, page.UpdatedAt.Format("2006-01-02 15:04"))
	for i, m := range msgs {
		who := "AI"
		if m.IsUser {
			who = "You"
		}
		fmt.Printf("[%d] %s: %s\n", i, who, m.Content)
	}
	return nil
}

func runPagesRename(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireToken(); err != nil {
		return err
	}
	if err := apiClient.RenamePage(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Renamed: %s\n", args[1])
	return nil
}

func runPagesDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireToken(); err != nil {
		return err
	}
	id := args[0]

	if !pagesForce {
		fmt.Printf("About to delete page %s and all of its messages.\n", id)
		fmt.Print("\nContinue? [y/N]: ")

		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))

		if response != "y" && response != "yes" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := apiClient.DeletePage(ctx, id); err != nil {
		return err
	}
	if st, err := openCache(ctx); err == nil {
		if err := st.DeletePage(ctx, id); err != nil {
			logger.Warn("failed to evict cached page", "page_id", id, "error", err)
		}
	}

	fmt.Printf("Deleted: %s\n", id)
	return nil
}
