package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"conference/internal/account"
	"conference/internal/bootstrap"
	"conference/internal/conference"
	"conference/internal/config"
	"conference/internal/fees"
	"conference/internal/logging"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "confctl",
		Short:   "Administration tasks for the conference site",
		Version: Version,
	}

	rootCmd.AddCommand(feesCmd())
	rootCmd.AddCommand(periodCmd())
	rootCmd.AddCommand(conferencesCmd())
	rootCmd.AddCommand(hashPasswordCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env holds what every store backed command needs.
type env struct {
	fees  *fees.Service
	confs *conference.Service
	now   func() time.Time
	close func()
}

// openEnv connects only the document store; queues and Redis stay closed.
func openEnv(ctx context.Context, cfg config.App) (*env, error) {
	cfg.QueueBackend = "memory"
	cfg.RateLimitBackend = "memory"
	log := logging.New(cfg.Env, "warn")

	b, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	clock := localClock(cfg)
	return &env{
		fees:  fees.NewService(fees.NewRepository(b.Docs), clock),
		confs: conference.NewService(conference.NewRepository(b.Docs), clock),
		now:   clock,
		close: b.Close,
	}, nil
}

// localClock reads the time in the configured zone, as the api does.
func localClock(cfg config.App) func() time.Time {
	loc := cfg.Location()
	return func() time.Time { return time.Now().In(loc) }
}

func feesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fees",
		Short: "Inspect or replace the registration fee schedule",
	}
	cmd.AddCommand(feesShowCmd(), feesLoadCmd())
	return cmd
}

func feesShowCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored fee schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), config.Load())
			if err != nil {
				return err
			}
			defer e.close()

			sched, period, err := e.fees.Current(cmd.Context())
			if err != nil {
				return err
			}
			var out []byte
			if asJSON {
				out, err = json.MarshalIndent(sched, "", "  ")
			} else {
				out, err = fees.EncodeYAML(sched)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# current period: %s\n%s\n", period, out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of YAML")
	return cmd
}

func feesLoadCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "load [file]",
		Short: "Replace the fee schedule from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var sched fees.Schedule
			if strings.HasSuffix(strings.ToLower(args[0]), ".json") {
				sched, err = fees.Decode(raw)
			} else {
				sched, err = fees.DecodeYAML(raw)
			}
			if err != nil {
				return err
			}
			cfg := config.Load()
			period := fees.ResolvePeriod(localClock(cfg)(), sched)
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "schedule is valid, period today would be %s\n", period)
				return nil
			}

			e, err := openEnv(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer e.close()
			if _, err := e.fees.Save(cmd.Context(), sched); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fee schedule saved (%s), current period %s\n", sched.Currency, period)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the file without saving it")
	return cmd
}

func periodCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "period",
		Short: "Show which registration period applies on a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			var at time.Time
			if date != "" {
				d, ok := fees.ParseDate(date)
				if !ok {
					return fmt.Errorf("invalid --date %q, want YYYY-MM-DD", date)
				}
				at = d.Time
			}
			e, err := openEnv(cmd.Context(), config.Load())
			if err != nil {
				return err
			}
			defer e.close()
			if at.IsZero() {
				at = e.now()
			}

			sched, _, err := e.fees.Current(cmd.Context())
			if err != nil {
				return err
			}
			p := fees.ResolvePeriod(at, sched)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %v\n", at.Format("2006-01-02"), p, sched.Categories(p))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Date to resolve (YYYY-MM-DD), defaults to today")
	return cmd
}

func conferencesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conferences",
		Short: "List conferences with their effective status",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), config.Load())
			if err != nil {
				return err
			}
			defer e.close()

			list, err := e.confs.List(cmd.Context(), true)
			if err != nil {
				return err
			}
			now := e.confs.Now()
			for _, c := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%-9s\t%s..%s\tregistration=%v papers=%v\t%s\n",
					c.ID, c.Status, c.StartDate, c.EndDate, c.AcceptsRegistrations(now), c.AcceptsPapers(now), c.Name)
			}
			return nil
		},
	}
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print a bcrypt hash for ADMIN_PASSWORD_HASH",
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			hash, err := account.HashPassword(strings.TrimRight(line, "\r\n"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
