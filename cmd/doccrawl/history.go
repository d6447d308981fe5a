package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/doccrawl/internal/config"
	"github.com/nao1215/doccrawl/internal/database"
	"github.com/nao1215/doccrawl/internal/model"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "Show previous crawl sessions",
		Long: `History lists the crawl sessions recorded in the local database, newest
first. Given a session ID it shows the outcome of every page of that session.

Examples:
  # List the last 20 sessions
  doccrawl history

  # List every session
  doccrawl history --limit 0

  # Show the pages of one session
  doccrawl history 20261019T101500-1a2b3c4d

  # Machine-readable output
  doccrawl history --json 20261019T101500-1a2b3c4d`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", 20,
		"Maximum number of sessions to list (0 for all)")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	out := cmd.OutOrStdout()
	db, err := database.Open(dbDir, opts)
	if errors.Is(err, database.ErrNotFound) && len(args) == 0 && !jsonOutput {
		fmt.Fprintln(out, "No crawl sessions recorded.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(args) == 1 {
		return showSession(ctx, out, db, args[0], jsonOutput)
	}
	return listSessions(ctx, out, db, limit, jsonOutput)
}

func listSessions(ctx context.Context, w io.Writer, db *database.HistoryDB, limit int, jsonOutput bool) error {
	sessions, err := db.ListSessions(ctx, limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		if sessions == nil {
			sessions = []database.SessionRecord{}
		}
		return writeJSON(w, sessions)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(w, "No crawl sessions recorded.")
		fmt.Fprintln(w, "\nUse 'doccrawl crawl <url>' to start one.")
		return nil
	}

	fmt.Fprintf(w, "Crawl sessions (%d):\n\n", len(sessions))
	fmt.Fprintf(w, "  %-24s  %-19s  %-18s  %5s  %6s  %s\n",
		"ID", "Started", "State", "Saved", "Failed", "Start URL")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 100))
	for _, s := range sessions {
		fmt.Fprintf(w, "  %-24s  %-19s  %-18s  %5d  %6d  %s\n",
			s.ID,
			s.StartedAt.Local().Format(time.DateTime),
			s.State,
			s.Saved,
			s.FailedOrSkipped(),
			s.StartURL,
		)
	}
	fmt.Fprintln(w, "\nUse 'doccrawl history <id>' to see the pages of a session.")
	return nil
}

// sessionDetail is the JSON shape of one session with its pages.
type sessionDetail struct {
	Session database.SessionRecord `json:"session"`
	Pages   []database.PageRecord  `json:"pages"`
}

func showSession(ctx context.Context, w io.Writer, db *database.HistoryDB, id string, jsonOutput bool) error {
	session, err := db.GetSession(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("no crawl session with id %q", id)
	}
	if err != nil {
		return err
	}
	pages, err := db.SessionPages(ctx, id)
	if err != nil {
		return err
	}

	if jsonOutput {
		if pages == nil {
			pages = []database.PageRecord{}
		}
		return writeJSON(w, sessionDetail{Session: *session, Pages: pages})
	}

	fmt.Fprintf(w, "Session:   %s\n", session.ID)
	fmt.Fprintf(w, "Start URL: %s\n", session.StartURL)
	fmt.Fprintf(w, "Output:    %s\n", session.OutputDir)
	fmt.Fprintf(w, "State:     %s\n", session.State)
	if session.AbortReason != "" {
		fmt.Fprintf(w, "Reason:    %s\n", session.AbortReason)
	}
	fmt.Fprintf(w, "Started:   %s\n", session.StartedAt.Local().Format(time.DateTime))
	if !session.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Duration:  %s\n", session.FinishedAt.Sub(session.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Pages:     %d / %d (max depth %d)\n", session.PagesFetched, session.MaxPages, session.MaxDepth)
	fmt.Fprintf(w, "Saved: %d, Failed/Skipped: %d\n", session.Saved, session.FailedOrSkipped())

	if len(pages) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-10s  %5s  %-24s  %s\n", "Status", "Depth", "File / Error", "URL")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 100))
	for _, p := range pages {
		detail := p.File
		if p.Status != model.PageSaved {
			detail = string(p.Class)
			if p.Status == model.PageSinkError {
				detail = "write error"
			}
		}
		fmt.Fprintf(w, "  %-10s  %5d  %-24s  %s\n", p.Status, p.Depth, detail, p.URL)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}
