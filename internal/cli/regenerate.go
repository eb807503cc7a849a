package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmelchner/applyflow/internal/orchestrator"
	"github.com/jmelchner/applyflow/internal/session"
)

var regenerateTimeout time.Duration

var regenerateCmd = &cobra.Command{
	Use:   "regenerate <page-id>",
	Short: "Regenerate the last AI reply of a page",
	Long: `Regenerate the last AI reply of a page.

Rewinds the conversation to the last user message, discards everything
after it, and resubmits that message to the orchestrator. Waits for the
new reply and prints it.

Examples:
  applyflow regenerate 4f2a
  applyflow regenerate 4f2a --timeout 5m`,
	Args: cobra.ExactArgs(1),
	RunE: runRegenerate,
}

func init() {
	regenerateCmd.Flags().DurationVar(&regenerateTimeout, "timeout", 2*time.Minute, "how long to wait for the new reply")
}

func runRegenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireToken(); err != nil {
		return err
	}
	pageID := args[0]

	sess, err := loadSession(ctx, pageID)
	if err != nil {
		return err
	}
	content, err := sess.Regenerate(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNoUserMessage) {
			return fmt.Errorf("page %s has no user message to resubmit", pageID)
		}
		return err
	}

	conn := orchestrator.New(orchestrator.Config{
		URL:            cfg.WSURL,
		Token:          cfg.Token,
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         logger,
		Collector:      collector,
	})
	defer conn.Close()

	if err := conn.SwitchPage(pageID); err != nil {
		return err
	}
	if err := conn.Dial(ctx); err != nil {
		return err
	}
	if err := conn.SendMessage(content); err != nil {
		return fmt.Errorf("resubmit message: %w", err)
	}

	fmt.Println("Waiting for a new reply...")

	timeout := time.After(regenerateTimeout)
	for {
		select {
		case ev := <-conn.Events():
			switch ev := ev.(type) {
			case orchestrator.EventAssistantMessage:
				sess.AppendAssistant(ev.Content)
				refreshMessageCache(ctx, pageID, sess)
				fmt.Printf("\n%s\n", ev.Content)
				return nil
			case orchestrator.EventReasoning:
				logger.Debug("reasoning update", "stage", ev.Stage)
			case orchestrator.EventError:
				return fmt.Errorf("orchestrator error: %s", ev.Message)
			case orchestrator.EventDisconnected:
				if ev.Err != nil {
					return fmt.Errorf("connection lost: %w", ev.Err)
				}
				return errors.New("connection closed before a reply arrived")
			}
		case <-timeout:
			return fmt.Errorf("no reply within %s", regenerateTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
