package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmelchner/applyflow/internal/models"
	"github.com/jmelchner/applyflow/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage captured job-posting data",
	Long: `Manage the captured job posting used to tailor generated documents.

The browser extension captures postings into the same slot; this
command reads and writes it from the terminal.

Subcommands:
  save   Store job data from a JSON file (or stdin with "-")
  show   Show the stored job data
  clear  Remove the stored job data

Examples:
  applyflow jobs save posting.json
  cat posting.json | applyflow jobs save -
  applyflow jobs show
  applyflow jobs clear`,
}

var jobsSaveCmd = &cobra.Command{
	Use:   "save <file>",
	Short: "Store job data from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsSave,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored job data",
	RunE:  runJobsShow,
}

var jobsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored job data",
	RunE:  runJobsClear,
}

func init() {
	jobsCmd.AddCommand(jobsSaveCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsClearCmd)
}

func runJobsSave(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var data []byte
	var err error
	if args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read job data: %w", err)
	}

	var job models.JobData
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("parse job data: %w", err)
	}
	if job.Title == "" || job.Company == "" {
		return errors.New("job data needs at least a title and a company")
	}
	job.CapturedAt = time.Now()

	stored, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job data: %w", err)
	}

	st, err := openCache(ctx)
	if err != nil {
		return err
	}
	if err := st.SetSetting(ctx, store.SettingJobData, string(stored)); err != nil {
		return err
	}

	fmt.Printf("Saved: %s at %s\n", job.Title, job.Company)
	return nil
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	st, err := openCache(ctx)
	if err != nil {
		return err
	}
	raw, err := st.GetSetting(ctx, store.SettingJobData)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fmt.Println("No job data stored.")
			return nil
		}
		return err
	}

	var job models.JobData
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return fmt.Errorf("parse stored job data: %w", err)
	}

	fmt.Printf("Title:     %s\n", job.Title)
	fmt.Printf("Company:   %s\n", job.Company)
	if job.Location != "" {
		fmt.Printf("Location:  %s\n", job.Location)
	}
	if job.URL != "" {
		fmt.Printf("URL:       %s\n", job.URL)
	}
	if !job.CapturedAt.IsZero() {
		fmt.Printf("Captured:  %s\n", job.CapturedAt.Format("2006-01-02 15:04"))
	}
	if job.Description != "" {
		fmt.Printf("\n%s\n", job.Description)
	}
	return nil
}

func runJobsClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	st, err := openCache(ctx)
	if err != nil {
		return err
	}
	if err := st.DeleteSetting(ctx, store.SettingJobData); err != nil {
		return err
	}
	fmt.Println("Cleared.")
	return nil
}
