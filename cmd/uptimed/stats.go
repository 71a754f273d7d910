package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mickybart/uptimed/pkg/config"
	"github.com/mickybart/uptimed/pkg/service"
	"github.com/mickybart/uptimed/pkg/storage"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Read monitoring statistics from the storage backend",
}

func withStore(fn func(ctx context.Context, store storage.Store) error) error {
	cfgPath, _ := rootCmd.PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	return fn(ctx, store)
}

func statusString(s *service.Status) string {
	if s == nil {
		return "-"
	}
	return s.String()
}

var statsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List services with their recorded and public status",
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")

		return withStore(func(ctx context.Context, store storage.Store) error {
			services, err := store.AllServices(ctx, storage.ServiceFilter{Category: category})
			if err != nil {
				return fmt.Errorf("failed to list services: %w", err)
			}

			if len(services) == 0 {
				fmt.Println("No services found")
				return nil
			}

			fmt.Printf("%-14s %-10s %-8s %-8s %s\n", "KIND", "CATEGORY", "STATUS", "PUBLIC", "DESCRIPTION")
			for _, svc := range services {
				fmt.Printf("%-14s %-10s %-8s %-8s %s\n",
					svc.Kind, svc.Category, svc.Status, statusString(svc.StatusPublic), svc.Description)
			}
			return nil
		})
	},
}

var statsSLACmd = &cobra.Command{
	Use:   "sla",
	Short: "Show consolidated or ad-hoc SLA figures",
	Long: `Without --since and --duration, show the consolidated SLA rows of the
requested kind for the period starting at --date (seconds since epoch). The
most recently completed period is not looked up: --date defaults to 0, which
matches no consolidated row. With --since and --duration, compute an ad-hoc
SLA over an arbitrary window directly from the downtime log.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kindFlag, _ := cmd.Flags().GetString("kind")
		date, _ := cmd.Flags().GetInt64("date")
		since, _ := cmd.Flags().GetInt64("since")
		duration, _ := cmd.Flags().GetInt64("duration")

		var kind storage.PeriodKind
		switch kindFlag {
		case "daily":
			kind = storage.Daily
		case "weekly":
			kind = storage.Weekly
		case "monthly":
			kind = storage.Monthly
		default:
			return fmt.Errorf("kind must be daily, weekly or monthly")
		}

		return withStore(func(ctx context.Context, store storage.Store) error {
			services, err := store.AllServices(ctx, storage.ServiceFilter{})
			if err != nil {
				return fmt.Errorf("failed to list services: %w", err)
			}

			// Ad-hoc window: recompute from the downtime log instead of
			// reading consolidated rows.
			if since > 0 && duration > 0 {
				fmt.Printf("%-10s %-8s %s\n", "SLA", "STATUS", "DESCRIPTION")
				for _, svc := range services {
					downtimes, err := store.FindDowntimes(ctx, svc.ID, since, duration)
					if err != nil {
						return fmt.Errorf("failed to fetch downtimes: %w", err)
					}
					sla := storage.SLAForDowntimes(downtimes, since, duration)
					fmt.Printf("%-10.3f %-8s %s\n", sla, svc.Status, svc.Description)
				}
				return nil
			}

			fmt.Printf("%-10s %-12s %s\n", "SLA", "PERIOD", "DESCRIPTION")
			for _, svc := range services {
				sla, found, err := store.SLA(ctx, kind, svc.ID, date)
				if err != nil {
					return fmt.Errorf("failed to read sla: %w", err)
				}
				if !found {
					fmt.Printf("%-10s %-12d %s\n", "-", date, svc.Description)
					continue
				}
				fmt.Printf("%-10.3f %-12d %s\n", sla, date, svc.Description)
			}
			return nil
		})
	},
}

var statsDowntimesCmd = &cobra.Command{
	Use:   "downtimes",
	Short: "List downtime intervals overlapping a window",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetInt64("since")
		duration, _ := cmd.Flags().GetInt64("duration")
		category, _ := cmd.Flags().GetString("category")

		if since <= 0 {
			since = time.Now().Add(-24 * time.Hour).Unix()
		}
		if duration <= 0 {
			duration = 24 * 60 * 60
		}

		return withStore(func(ctx context.Context, store storage.Store) error {
			services, err := store.AllServices(ctx, storage.ServiceFilter{Category: category})
			if err != nil {
				return fmt.Errorf("failed to list services: %w", err)
			}

			fmt.Printf("%-21s %-21s %-10s %s\n", "DOWN START", "DOWN END", "DURATION", "DESCRIPTION")
			for _, svc := range services {
				downtimes, err := store.FindDowntimes(ctx, svc.ID, since, duration)
				if err != nil {
					return fmt.Errorf("failed to fetch downtimes: %w", err)
				}
				for _, dt := range downtimes {
					start := time.Unix(dt.DownStart, 0).Format("2006-01-02 15:04:05")
					end := "ongoing"
					dur := "-"
					if dt.DownEnd != 0 {
						end = time.Unix(dt.DownEnd, 0).Format("2006-01-02 15:04:05")
						dur = (time.Duration(dt.DownEnd-dt.DownStart) * time.Second).String()
					}
					fmt.Printf("%-21s %-21s %-10s %s\n", start, end, dur, svc.Description)
				}
			}
			return nil
		})
	},
}

func init() {
	statsCmd.AddCommand(statsStatusCmd)
	statsCmd.AddCommand(statsSLACmd)
	statsCmd.AddCommand(statsDowntimesCmd)

	statsStatusCmd.Flags().String("category", "", "Only services of this category")

	statsSLACmd.Flags().String("kind", "daily", "Period kind (daily, weekly, monthly)")
	statsSLACmd.Flags().Int64("date", 0, "Period start as seconds since epoch")
	statsSLACmd.Flags().Int64("since", 0, "Ad-hoc window start as seconds since epoch")
	statsSLACmd.Flags().Int64("duration", 0, "Ad-hoc window length in seconds")

	statsDowntimesCmd.Flags().Int64("since", 0, "Window start as seconds since epoch (default: 24h ago)")
	statsDowntimesCmd.Flags().Int64("duration", 0, "Window length in seconds (default: 24h)")
	statsDowntimesCmd.Flags().String("category", "", "Only services of this category")
}
