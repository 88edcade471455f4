package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"academia-backend/lib/browser"
	"academia-backend/lib/configutil"
	portal "academia-backend/lib/scrapers/academia"
	"academia-backend/lib/serviceutil"
	"academia-backend/lib/token"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type Config struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Batch overrides batch extraction, "1" or "2"
	Batch   string          `json:"batch"`
	Browser browser.Options `json:"browser"`
}

// discardSink drops session material; the CLI has no store.
type discardSink struct{}

func (discardSink) SetSessionMaterial(ctx context.Context, owner string, material portal.SessionMaterial) error {
	return nil
}

func loggedInClient(ctx context.Context, cfg Config) (*portal.Client, func()) {
	session, err := browser.Acquire(ctx, cfg.Browser)
	if err != nil {
		serviceutil.Fatal("failed to acquire a browser", err)
	}

	client := portal.NewClient(session, token.NewIssuer("academia-cli"), discardSink{}, cfg.Email, cfg.Password)
	if err := client.Login(ctx); err != nil {
		session.Release()
		serviceutil.Fatal("failed to login", err)
	}
	return client, session.Release
}

var scrapeJSON *bool

func init() {
	scrapeJSON = scrapeCmd.Flags().Bool("json", false, "Print raw snapshot json instead of tables.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrapes attendance and marks according to config.json5 and prints them.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		slog.Info("scraping using user", "email", cfg.Email)
		client, release := loggedInClient(cmd.Context(), cfg)
		defer release()

		t1 := time.Now()
		attendance, marks, err := client.ScrapeAttendanceAndMarks(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to scrape", err)
		}
		slog.Info("scraping time", "seconds", time.Since(t1).Seconds())

		if *scrapeJSON {
			out, err := json.MarshalIndent(map[string]any{
				"attendance": attendance,
				"marks":      marks,
			}, "", "  ")
			if err != nil {
				serviceutil.Fatal("failed to encode snapshots", err)
			}
			fmt.Println(string(out))
			return
		}

		renderAttendance(attendance)
		renderMarks(marks)
	},
}

func renderAttendance(snapshot *portal.AttendanceSnapshot) {
	fmt.Printf("\nAttendance for %s\n", snapshot.RegistrationNumber)

	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.AppendHeader(table.Row{"Code", "Title", "Category", "Slot", "Conducted", "Absent", "%"})
	for _, r := range snapshot.Records {
		w.AppendRow(table.Row{
			r.CourseCode, r.CourseTitle, r.Category, r.Slot,
			r.HoursConducted, r.HoursAbsent, r.AttendancePercentage,
		})
	}
	w.Render()
}

func renderMarks(snapshot *portal.MarksSnapshot) {
	fmt.Println("\nMarks")

	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.AppendHeader(table.Row{"Course", "Test", "Obtained", "Max"})
	for _, r := range snapshot.Records {
		for _, t := range r.Tests {
			w.AppendRow(table.Row{r.CourseName, t.TestCode, t.ObtainedMarks, t.MaxMarks})
		}
	}
	w.Render()
}
