package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-scheduling-assistant/internal/config"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/notify"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/timeexpr"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

func cliLogger() *logging.Logger {
	return logging.New(appconfig.Load().LogLevel)
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List open slots for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			ctx := cmd.Context()
			cfg := appconfig.Load()
			logger := cliLogger()

			db, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)

			sched, err := bootstrap.BuildScheduling(ctx, cfg, bootstrap.SchedulingDeps{DB: db, Redis: redisClient}, logger)
			if err != nil {
				return err
			}
			if date == "" {
				date = time.Now().In(sched.Location).Format(timeexpr.DateLayout)
			}
			list, err := sched.Manager.ListSlots(ctx, date)
			if err != nil {
				return err
			}
			if len(list.Slots) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: sin horarios disponibles\n", list.Date)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", list.Date, strings.Join(list.Slots, " · "))
			return nil
		},
	}
	cmd.Flags().String("date", "", "Date as YYYY-MM-DD (default today)")
	return cmd
}

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <text>",
		Short: "Resolve a Spanish date and time expression",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			tz, _ := cmd.Flags().GetString("tz")
			today, _ := cmd.Flags().GetString("today")
			reschedule, _ := cmd.Flags().GetBool("reschedule")

			loc, err := bootstrap.LoadLocation(tz)
			if err != nil {
				return err
			}
			base := time.Now().In(loc)
			if today != "" {
				if base, err = timeexpr.ParseISODate(today, loc); err != nil {
					return err
				}
			}
			mode := timeexpr.ModeBook
			if reschedule {
				mode = timeexpr.ModeReschedule
			}

			out := cmd.OutOrStdout()
			date, ok, err := timeexpr.NewResolver(timeexpr.NewSpanishParser()).ResolveDate(text, base, mode)
			switch {
			case err != nil:
				return err
			case ok:
				fmt.Fprintf(out, "date: %s\n", date.Format(timeexpr.DateLayout))
			default:
				fmt.Fprintln(out, "date: -")
			}
			if hhmm, ok := timeexpr.ResolveTime(text); ok {
				fmt.Fprintf(out, "time: %s\n", hhmm)
			} else {
				fmt.Fprintln(out, "time: -")
			}
			return nil
		},
	}
	cmd.Flags().String("tz", "America/Mexico_City", "Clinic time zone")
	cmd.Flags().String("today", "", "Reference date as YYYY-MM-DD (default today)")
	cmd.Flags().Bool("reschedule", false, "Use reschedule clamping for explicit past years")
	return cmd
}

type calendarSummarizer interface {
	Summary(ctx context.Context) (string, error)
}

func calendarCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calendar-check",
		Short: "Verify calendar access and show open slots for the next three days",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 20*time.Second)
			defer cancel()
			cfg := appconfig.Load()
			provider, err := bootstrap.BuildCalendarProvider(ctx, cfg, cliLogger())
			if err != nil {
				return err
			}
			summarizer, ok := provider.(calendarSummarizer)
			if !ok {
				return errors.New("calendar sync is not configured (set GCAL_SA_JSON)")
			}
			summary, err := summarizer.Summary(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "calendar %q reachable: %s\n", cfg.GCalCalendarID, summary)

			logger := cliLogger()
			db, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			sched, err := bootstrap.BuildScheduling(ctx, cfg, bootstrap.SchedulingDeps{DB: db, Calendar: provider}, logger)
			if err != nil {
				return err
			}
			today := time.Now().In(sched.Location)
			for i := 0; i < 3; i++ {
				list, err := sched.Manager.ListSlots(ctx, today.AddDate(0, 0, i).Format(timeexpr.DateLayout))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %d open [%s]\n", list.Date, len(list.Slots), strings.Join(list.Slots, " · "))
			}
			return nil
		},
	}
}

func purgePatientCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-patient <contact>",
		Short: "Delete a patient with their appointments and message history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := appconfig.Load()
			logger := cliLogger()
			db, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
			if err != nil {
				return err
			}
			if db == nil {
				return errors.New("DATABASE_URL is required")
			}
			defer db.Close()

			sched, err := bootstrap.BuildScheduling(ctx, cfg, bootstrap.SchedulingDeps{
				DB:    db,
				Redis: bootstrap.BuildRedisClient(ctx, cfg, logger, true),
			}, logger)
			if err != nil {
				return err
			}
			contact := notify.NormalizeAddress(args[0])
			removed, err := sched.Manager.PurgePatient(ctx, contact)
			if err != nil {
				return err
			}
			messages, err := notify.NewMessageLog(db.SQL).PurgeContact(ctx, contact)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: patient removed=%t, messages removed=%d\n", logging.MaskContact(contact), removed, messages)
			return nil
		},
	}
}
