package cli

import (
	"context"
	"fmt"
	"os"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"
)

var pdfOutput string

var pdfCmd = &cobra.Command{
	Use:   "pdf <page-id>",
	Short: "Download the generated PDF for a page",
	Long: `Download the generated resume/cover letter PDF for a page.

Examples:
  applyflow pdf 4f2a -o resume.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runPDF,
}

func init() {
	pdfCmd.Flags().StringVarP(&pdfOutput, "output", "o", "", "output file (required)")
	pdfCmd.MarkFlagRequired("output")
}

// pdfProgressMsg carries download progress; total is -1 without a
// Content-Length header.
type pdfProgressMsg struct {
	written int64
	total   int64
}

// pdfDoneMsg signals the download finished.
type pdfDoneMsg struct {
	err error
}

// pdfModel is the bubbletea model for the download progress display.
// Progress updates and the final outcome arrive on separate channels:
// progress sends are dropped when the UI lags, the single done send
// goes into a 1-buffered channel so the download goroutine never
// blocks on it after the UI quit.
type pdfModel struct {
	path     string
	progress progress.Model
	theme    Theme
	updates  chan pdfProgressMsg
	finished chan pdfDoneMsg
	cancel   context.CancelFunc

	written  int64
	total    int64
	done     bool
	quitting bool
	err      error
}

func newPDFModel(path string, updates chan pdfProgressMsg, finished chan pdfDoneMsg, cancel context.CancelFunc) pdfModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return pdfModel{
		path:     path,
		progress: prog,
		theme:    defaultTheme,
		updates:  updates,
		finished: finished,
		cancel:   cancel,
		total:    -1,
	}
}

// Init starts listening for download events.
func (m pdfModel) Init() tea.Cmd {
	return tea.Batch(
		m.waitForMsg(),
		m.progress.Init(),
	)
}

// waitForMsg blocks on the download goroutine's channels as a command.
func (m pdfModel) waitForMsg() tea.Cmd {
	updates, finished := m.updates, m.finished
	return func() tea.Msg {
		select {
		case msg := <-updates:
			return msg
		case msg := <-finished:
			return msg
		}
	}
}

// Update handles messages and returns the updated model.
func (m pdfModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.cancel()
			return m, tea.Quit
		}

	case pdfProgressMsg:
		m.written = msg.written
		m.total = msg.total
		return m, m.waitForMsg()

	case pdfDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m pdfModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m pdfModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	if m.total > 0 {
		pct := float64(m.written) / float64(m.total)
		counts := fmt.Sprintf("%d/%d bytes", m.written, m.total)
		hint := m.theme.hintStyle().Render("Press Ctrl+C to cancel")
		return fmt.Sprintf("%s %s\n%s\n", m.progress.ViewAs(pct), counts, hint)
	}
	return fmt.Sprintf("Downloading... %d bytes\n", m.written)
}

// finalView renders the completion message.
func (m pdfModel) finalView() string {
	if m.quitting {
		return m.theme.hintStyle().Render("\nCancelled.\n")
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Download failed: %s\n", m.err))
	}
	return m.theme.assistantStyle().Render(fmt.Sprintf("✓ Saved %s\n", m.path))
}

func runPDF(cmd *cobra.Command, args []string) error {
	if err := requireToken(); err != nil {
		return err
	}
	pageID := args[0]

	f, err := os.Create(pdfOutput)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	updates := make(chan pdfProgressMsg, 16)
	finished := make(chan pdfDoneMsg, 1)
	go func() {
		err := apiClient.DownloadPDF(ctx, pageID, f, func(written, total int64) {
			// Drop intermediate updates rather than stall the download.
			select {
			case updates <- pdfProgressMsg{written: written, total: total}:
			default:
			}
		})
		finished <- pdfDoneMsg{err: err}
	}()

	finalModel, err := tea.NewProgram(newPDFModel(pdfOutput, updates, finished, cancel)).Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(pdfModel); ok {
		if m.quitting {
			os.Remove(pdfOutput)
			return nil
		}
		if m.err != nil {
			os.Remove(pdfOutput)
			return m.err
		}
	}
	return nil
}
