package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jmelchner/applyflow/internal/session"
	"github.com/jmelchner/applyflow/internal/store"
)

var (
	deleteAbove bool
	deleteNow   bool
)

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Edit or delete messages in a page",
	Long: `Edit or delete messages in a conversation page.

Messages are addressed by their index as shown by 'applyflow pages show'.
Both operations truncate the conversation: everything after the touched
message is discarded, locally and on the server.

Deletes get an undo window: the delete is applied immediately but only
committed to the server after a grace period, during which pressing
Enter cancels it.

Examples:
  applyflow messages edit 4f2a 3 "Make the tone more formal"
  applyflow messages delete 4f2a 4
  applyflow messages delete 4f2a 4 --above --now`,
}

var messagesEditCmd = &cobra.Command{
	Use:   "edit <page-id> <index> <content>",
	Short: "Replace a message's content and discard everything after it",
	Args:  cobra.ExactArgs(3),
	RunE:  runMessagesEdit,
}

var messagesDeleteCmd = &cobra.Command{
	Use:   "delete <page-id> <index>",
	Short: "Delete a message and everything after it",
	Args:  cobra.ExactArgs(2),
	RunE:  runMessagesDelete,
}

func init() {
	messagesDeleteCmd.Flags().BoolVar(&deleteAbove, "above", false, "also delete the user message directly above")
	messagesDeleteCmd.Flags().BoolVar(&deleteNow, "now", false, "skip the undo window")

	messagesCmd.AddCommand(messagesEditCmd)
	messagesCmd.AddCommand(messagesDeleteCmd)
}

// loadSession fetches a page's history into a fresh session.
func loadSession(ctx context.Context, pageID string) (*session.Session, error) {
	sess := session.New(apiClient, cfg.UndoGrace)
	if err := sess.Load(ctx, pageID); err != nil {
		return nil, err
	}
	return sess, nil
}

func runMessagesEdit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireToken(); err != nil {
		return err
	}

	idx, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid index %q: %w", args[1], err)
	}

	sess, err := loadSession(ctx, args[0])
	if err != nil {
		return err
	}
	if err := sess.Edit(ctx, idx, args[2]); err != nil {
		return err
	}

	refreshMessageCache(ctx, args[0], sess)
	fmt.Printf("Edited message %d. Conversation now has %d messages.\n", idx, sess.Len())
	return nil
}

func runMessagesDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireToken(); err != nil {
		return err
	}

	idx, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid index %q: %w", args[1], err)
	}

	sess, err := loadSession(ctx, args[0])
	if err != nil {
		return err
	}

	if deleteNow {
		if err := sess.Delete(ctx, idx, deleteAbove); err != nil {
			return err
		}
		refreshMessageCache(ctx, args[0], sess)
		fmt.Printf("Deleted. Conversation now has %d messages.\n", sess.Len())
		return nil
	}

	result := make(chan error, 1)
	pending, err := sess.ScheduleDelete(idx, deleteAbove, func(err error) {
		result <- err
	})
	if err != nil {
		return err
	}

	fmt.Printf("Deleting message %d in %s. Press Enter to undo... ", idx, cfg.UndoGrace)

	undone := make(chan struct{})
	go func() {
		reader := bufio.NewReader(os.Stdin)
		if _, err := reader.ReadString('\n'); err == nil {
			if pending.Cancel() {
				close(undone)
			}
		}
	}()

	select {
	case <-undone:
		fmt.Println("\nUndone, nothing deleted.")
		return nil
	case err := <-result:
		if err != nil {
			return fmt.Errorf("delete failed, conversation restored: %w", err)
		}
		refreshMessageCache(ctx, args[0], sess)
		fmt.Printf("\nDeleted. Conversation now has %d messages.\n", sess.Len())
		return nil
	}
}

// refreshMessageCache mirrors the post-mutation message list into the
// local cache. Failures only warn; the server is the source of truth.
func refreshMessageCache(ctx context.Context, pageID string, sess *session.Session) {
	st, err := openCache(ctx)
	if err != nil {
		return
	}

	// Pages mutated without a prior list/show have no cached row yet;
	// fetch it so --cached listings carry the real title.
	if _, err := st.GetPage(ctx, pageID); errors.Is(err, store.ErrNotFound) {
		if page, err := apiClient.GetPage(ctx, pageID); err == nil {
			if err := st.UpsertPage(ctx, *page); err != nil {
				logger.Warn("failed to cache page", "page_id", pageID, "error", err)
			}
		}
	}

	if err := st.ReplaceMessages(ctx, pageID, sess.Messages()); err != nil {
		logger.Warn("failed to refresh cached messages", "page_id", pageID, "error", err)
	}
}
