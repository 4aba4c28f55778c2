package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/noah-isme/gema-autograder/internal/bootstrap"
	"github.com/noah-isme/gema-autograder/internal/config"
	"github.com/noah-isme/gema-autograder/internal/dto"
	"github.com/noah-isme/gema-autograder/internal/models"
	"github.com/noah-isme/gema-autograder/pkg/ai"
)

type ui struct {
	title func(a ...interface{}) string
	ok    func(a ...interface{}) string
	info  func(a ...interface{}) string
	warn  func(a ...interface{}) string
	err   func(a ...interface{}) string
	dim   func(a ...interface{}) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

func main() {
	ui := newUI()
	var verbose bool

	root := &cobra.Command{
		Use:           "autograde",
		Short:         "Grade homework submissions from the command line",
		Long:          "autograde extracts student submissions, grades them with the configured AI provider and records the results in the local grading history.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log grading progress to stderr")

	root.AddCommand(newGradeCommand(ui, &verbose), newHistoryCommand(ui))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err)
		os.Exit(1)
	}
}

func newGradeCommand(ui *ui, verbose *bool) *cobra.Command {
	var (
		delay    time.Duration
		timeout  time.Duration
		asJSON   bool
		provider string
	)

	cmd := &cobra.Command{
		Use:   "grade <files...>",
		Short: "Grade one or more submission files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("delay") {
				cfg.GradingItemDelay = delay
			}
			if cmd.Flags().Changed("timeout") {
				cfg.GradingTimeout = timeout
			}
			if provider != "" {
				cfg.AIProvider = strings.ToLower(provider)
			}

			files, err := submissionFiles(args)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			core, err := bootstrap.NewCore(ctx, cfg, cliLogger(*verbose), bootstrap.Options{})
			if err != nil {
				return err
			}
			defer core.Close()

			updates, unsubscribe := core.Events.Subscribe()
			defer unsubscribe()

			core.Queue.Enqueue(ctx, files)
			done, _ := core.Queue.StartOrResume(ctx)

			progress := newProgress(len(files), interactive(os.Stderr) && !asJSON)
			for running := true; running; {
				select {
				case snapshot := <-updates:
					progress.update(snapshot)
				case <-done:
					running = false
				}
			}
			progress.finish()

			snapshot := core.Queue.Snapshot()
			view := dto.NewQueueSnapshotResponse(snapshot.Items, snapshot.IsProcessing, snapshot.SelectedID)
			if asJSON {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(view)
			}

			printQueue(os.Stdout, ui, view)
			if ctx.Err() != nil {
				return fmt.Errorf("grading interrupted")
			}
			if view.Counts.Error > 0 {
				return fmt.Errorf("%d of %d submissions failed", view.Counts.Error, view.Counts.Total)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&delay, "delay", time.Second, "Pause between submissions")
	cmd.Flags().DurationVar(&timeout, "timeout", 90*time.Second, "Timeout for a single grading call")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the final queue as JSON")
	cmd.Flags().StringVar(&provider, "provider", "", "Override the AI provider (gemini, openai, anthropic)")
	return cmd
}

func newHistoryCommand(ui *ui) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored grading results, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			core, err := bootstrap.NewCore(cmd.Context(), cfg, zerolog.Nop(), bootstrap.Options{Grader: noopGrader{}})
			if err != nil {
				return err
			}
			defer core.Close()

			items := core.History.List()
			if limit > 0 && len(items) > limit {
				items = items[:limit]
			}
			responses := dto.NewHistoryItemResponses(items)

			if asJSON {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(responses)
			}

			printHistory(os.Stdout, ui, responses)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func submissionFiles(paths []string) ([]models.SubmissionFile, error) {
	files := make([]models.SubmissionFile, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", path)
		}
		contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
		if !models.IsAcceptedSubmission(path, contentType) {
			return nil, fmt.Errorf("unsupported file type: %s", path)
		}
		files = append(files, models.NewDiskFile(path, contentType))
	}
	return files, nil
}

func cliLogger(verbose bool) zerolog.Logger {
	if !verbose {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
}

func interactive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// progress renders a bar for batches and a spinner for a single file.
type progress struct {
	bar  *progressbar.ProgressBar
	spin *spinner.Spinner
}

func newProgress(total int, enabled bool) *progress {
	p := &progress{}
	if !enabled {
		return p
	}
	if total == 1 {
		p.spin = spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(os.Stderr))
		p.spin.Suffix = " grading"
		p.spin.Start()
		return p
	}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Grading"),
		progressbar.OptionSetWidth(24),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	return p
}

func (p *progress) update(snapshot dto.QueueSnapshotResponse) {
	current := ""
	for _, item := range snapshot.Items {
		if item.Status == models.QueueStatusProcessing {
			current = item.FileName
			break
		}
	}

	if p.spin != nil && current != "" {
		p.spin.Suffix = " grading " + current
	}
	if p.bar != nil {
		if current != "" {
			p.bar.Describe(current)
		}
		_ = p.bar.Set(snapshot.Counts.Completed + snapshot.Counts.Error)
	}
}

func (p *progress) finish() {
	if p.spin != nil {
		p.spin.Stop()
	}
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func printQueue(w io.Writer, ui *ui, snapshot dto.QueueSnapshotResponse) {
	fmt.Fprintln(w, ui.title("Grading results"))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tSTUDENT ID\tNAME\tFILE\tSCORE\tNOTE")
	for _, item := range snapshot.Items {
		status, score, note := ui.dim(item.Status), "-", ""
		switch {
		case item.Result != nil:
			score = fmt.Sprintf("%.0f", item.Result.Score)
			if item.Result.Passed {
				status = ui.ok("PASS")
			} else {
				status = ui.warn("BELOW")
			}
			note = truncate(item.Result.Summary, 60)
		case item.Status == models.QueueStatusError:
			status = ui.err("ERROR")
			note = item.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", status, item.StudentID, item.StudentName, item.FileName, score, note)
	}
	_ = tw.Flush()

	counts := snapshot.Counts
	fmt.Fprintf(w, "%s %d graded, %d failed, %d total\n", ui.info("[INFO]"), counts.Completed, counts.Error, counts.Total)
}

func printHistory(w io.Writer, ui *ui, items []dto.HistoryItemResponse) {
	if len(items) == 0 {
		fmt.Fprintln(w, ui.dim("No grading history yet."))
		return
	}

	fmt.Fprintln(w, ui.title("Grading history"))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tSTUDENT ID\tNAME\tSCORE\tSNIPPET")
	for _, item := range items {
		score := fmt.Sprintf("%.0f", item.Result.Score)
		if item.Result.Passed {
			score = ui.ok(score)
		} else {
			score = ui.warn(score)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			item.Timestamp.Local().Format("2006-01-02 15:04"),
			item.StudentID, item.StudentName, score, truncate(item.Snippet, 40))
	}
	_ = tw.Flush()
}

func truncate(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "..."
}

// noopGrader lets read-only commands build the core without provider credentials.
type noopGrader struct{}

func (noopGrader) Grade(context.Context, ai.SubmissionContent) (ai.GradingResult, error) {
	return ai.GradingResult{}, ai.ErrOracleFailure
}
