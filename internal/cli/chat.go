package cli

import (
	"fmt"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/jmelchner/applyflow/internal/orchestrator"
	"github.com/jmelchner/applyflow/internal/session"
)

var (
	chatPage  string
	chatStats bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the orchestrator",
	Long: `Open an interactive chat with the ApplyFlow orchestrator.

Without --page a new conversation is started; the server creates and
announces a page once the first message is sent. With --page the
existing conversation is resumed and its history loaded.

Inside the chat:
  enter       send the message
  ctrl+g      regenerate the last AI reply
  ctrl+x      stop the current generation (best effort)
  ctrl+c/esc  quit

Examples:
  applyflow chat
  applyflow chat --page 4f2a`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatPage, "page", "p", "", "resume an existing page")
	chatCmd.Flags().BoolVar(&chatStats, "stats", false, "print connection metrics on exit")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireToken(); err != nil {
		return err
	}

	sess := session.New(apiClient, cfg.UndoGrace)
	if chatPage != "" {
		if err := sess.Load(ctx, chatPage); err != nil {
			return err
		}
	}

	conn := orchestrator.New(orchestrator.Config{
		URL:            cfg.WSURL,
		Token:          cfg.Token,
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         logger,
		Collector:      collector,
	})
	if chatPage != "" {
		if err := conn.SwitchPage(chatPage); err != nil {
			return err
		}
	}
	if err := conn.Dial(ctx); err != nil {
		return err
	}
	defer conn.Close()

	model := newChatModel(conn, sess)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return fmt.Errorf("run chat: %w", err)
	}

	// Persist what the server has before leaving.
	if pageID := sess.PageID(); pageID != "" {
		refreshMessageCache(ctx, pageID, sess)
	}

	if chatStats {
		printSnapshot(collector.Snapshot())
	}
	return nil
}
