package commands

import (
	"fmt"
	"os"

	"academia-backend/lib/configutil"
	portal "academia-backend/lib/scrapers/academia"
	"academia-backend/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(timetableCmd)
}

var timetableCmd = &cobra.Command{
	Use:   "timetable",
	Short: "Scrapes the timetable, reconciles it against the batch schedule and prints the week.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		client, release := loggedInClient(cmd.Context(), cfg)
		defer release()

		snapshot, err := client.ScrapeTimetable(cmd.Context(), cfg.Batch)
		if err != nil {
			serviceutil.Fatal("failed to scrape timetable", err)
		}

		fmt.Printf("\nTimetable (batch %s)\n", snapshot.Batch)
		for _, day := range portal.DayNames {
			w := table.NewWriter()
			w.SetOutputMirror(os.Stdout)
			w.SetTitle(day)
			w.AppendHeader(table.Row{"Time", "Slot", "Class"})
			for _, tr := range portal.TimeRanges {
				cell := snapshot.Merged[day][tr]
				display := cell.Display
				if display == "" {
					display = "-"
				}
				w.AppendRow(table.Row{tr, cell.OriginalSlot, display})
			}
			w.Render()
		}
	},
}
