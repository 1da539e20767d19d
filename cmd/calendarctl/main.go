package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"bioskin/internal/agenda"
	"bioskin/internal/app"
	"bioskin/internal/blocks"
	"bioskin/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "calendarctl",
		Short:         "Operator tool for the clinic calendar",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", config.PathFromEnv(), "Path to config.yaml")
	rootCmd.PersistentFlags().Bool("journal", true, "Record mutations in the sqlite journal")

	rootCmd.AddCommand(slotsCmd())
	rootCmd.AddCommand(agendaCmd())
	rootCmd.AddCommand(blockCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withApp loads the config, wires the services and runs fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	path, _ := cmd.Flags().GetString("config")
	useJournal, _ := cmd.Flags().GetBool("journal")

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg).Level(zerolog.WarnLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, useJournal, &logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func parseDate(a *app.App, value string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", value, a.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q; expected YYYY-MM-DD", value)
	}
	return d, nil
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show the slot grid of a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			dateStr, _ := cmd.Flags().GetString("date")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				date, err := parseDate(a, dateStr)
				if err != nil {
					return err
				}
				day, err := a.Availability.Day(ctx, date)
				if err != nil {
					return err
				}
				tw := newTable()
				fmt.Fprintln(tw, "START\tEND\tSTATE")
				for _, info := range day.Info() {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Start, info.End, info.State)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Printf("%d free\n", len(day.Free()))
				return nil
			})
		},
	}
	cmd.Flags().String("date", time.Now().Format("2006-01-02"), "Day to show (YYYY-MM-DD)")
	return cmd
}

func agendaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "List appointments and blocked hours of the next days",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			export, _ := cmd.Flags().GetString("export")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if days <= 0 {
					days = a.Config.AgendaDefaultDays()
				}
				win, err := a.Agenda.LoadWindow(ctx, days)
				if err != nil {
					return err
				}

				if export != "" {
					f, err := os.Create(export)
					if err != nil {
						return err
					}
					defer f.Close()
					if err := agenda.WriteXLSX(f, win, a.Location); err != nil {
						return err
					}
					fmt.Printf("exported %d events to %s\n", len(win.Events), export)
				} else {
					tw := newTable()
					fmt.Fprintln(tw, "DATE\tSTART\tEND\tKIND\tDETAIL\tID")
					for _, ev := range win.Events {
						start, end := ev.Interval.Start.In(a.Location), ev.Interval.End.In(a.Location)
						detail := ev.Meta.Patient
						if ev.Meta.Service != "" {
							detail += " / " + ev.Meta.Service
						}
						if detail == "" {
							detail = ev.Meta.Reason
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
							start.Format("2006-01-02"), start.Format("15:04"), end.Format("15:04"), ev.Kind, detail, ev.ID)
					}
					if err := tw.Flush(); err != nil {
						return err
					}
					fmt.Printf("%d appointments, %d blocked hours\n", win.Appointments, win.Blocks)
				}
				return win.Err()
			})
		},
	}
	cmd.Flags().Int("days", 0, "Number of days starting today (default from config)")
	cmd.Flags().String("export", "", "Write the window to this .xlsx file instead of printing it")
	return cmd
}

func blockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block",
		Short: "Manage blocked hours",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Block hours of a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			dateStr, _ := cmd.Flags().GetString("date")
			hoursStr, _ := cmd.Flags().GetString("hours")
			reason, _ := cmd.Flags().GetString("reason")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				date, err := parseDate(a, dateStr)
				if err != nil {
					return err
				}
				hours, err := blocks.ParseHours(hoursStr)
				if err != nil {
					return err
				}
				res, err := a.Blocks.Create(ctx, blocks.Request{Date: date, Hours: hours, Reason: reason})
				if err != nil {
					return err
				}
				for _, o := range res.Outcomes {
					status := "blocked " + o.EventID
					if o.Err != nil {
						status = "FAILED: " + o.Err.Error()
					}
					fmt.Printf("%02d:00  %s\n", o.Hour, status)
				}
				fmt.Println("state:", res.State)
				return res.Err()
			})
		},
	}
	createCmd.Flags().String("date", "", "Day to block (YYYY-MM-DD)")
	createCmd.Flags().String("hours", "", "Comma separated hours, e.g. 9,10,11")
	createCmd.Flags().String("reason", "", "Reason shown on the calendar")
	_ = createCmd.MarkFlagRequired("date")
	_ = createCmd.MarkFlagRequired("hours")
	_ = createCmd.MarkFlagRequired("reason")
	cmd.AddCommand(createCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List blocked periods",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if days <= 0 {
					days = a.Config.AgendaDefaultDays()
				}
				periods, listErr := a.Blocks.List(ctx, days)
				tw := newTable()
				fmt.Fprintln(tw, "DATE\tHOURS\tREASON\tCREATED")
				for _, p := range periods {
					fmt.Fprintf(tw, "%s\t%v\t%s\t%s\n", p.Date.Format("2006-01-02"), p.Hours(), p.Reason,
						p.CreatedAt.In(a.Location).Format("2006-01-02 15:04"))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				return listErr
			})
		},
	}
	listCmd.Flags().Int("days", 0, "Number of days starting today (default from config)")
	cmd.AddCommand(listCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete every blocked period of a day with the given reason",
		RunE: func(cmd *cobra.Command, args []string) error {
			dateStr, _ := cmd.Flags().GetString("date")
			reason, _ := cmd.Flags().GetString("reason")
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				date, err := parseDate(a, dateStr)
				if err != nil {
					return err
				}
				days := int(math.Round(date.Sub(a.Availability.Today()).Hours()/24)) + 1
				if days < 1 {
					return fmt.Errorf("--date %s is in the past", dateStr)
				}
				periods, err := a.Blocks.List(ctx, days)
				if err != nil {
					return err
				}

				found := 0
				for _, p := range periods {
					if !p.Date.Equal(date) || p.Reason != reason {
						continue
					}
					found++
					res, err := a.Blocks.Delete(ctx, p)
					if err != nil {
						return err
					}
					fmt.Printf("%s %v: %s\n", p.Date.Format("2006-01-02"), p.Hours(), res.State)
					if err := res.Err(); err != nil {
						return err
					}
				}
				if found == 0 {
					return fmt.Errorf("no blocked period on %s with reason %q", dateStr, reason)
				}
				return nil
			})
		},
	}
	deleteCmd.Flags().String("date", "", "Day of the period (YYYY-MM-DD)")
	deleteCmd.Flags().String("reason", "", "Reason of the period")
	_ = deleteCmd.MarkFlagRequired("date")
	_ = deleteCmd.MarkFlagRequired("reason")
	cmd.AddCommand(deleteCmd)

	return cmd
}
