package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/revcycle/denialengine/internal/config"
	"github.com/revcycle/denialengine/internal/domain/analytics"
	"github.com/revcycle/denialengine/internal/domain/denial"
	"github.com/revcycle/denialengine/internal/domain/risk"
	"github.com/revcycle/denialengine/internal/platform/db"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "denialengine",
		Short: "Claims denial management engine",
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(aggregateCmd())
	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(urgentCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &app{cfg: cfg, pool: pool, logger: logger}, nil
}

func (a *app) close() { a.pool.Close() }

func (a *app) denialService() *denial.Service {
	return denial.NewService(
		denial.NewDenialRepoPG(a.pool),
		denial.NewAppealRepoPG(a.pool),
		denial.NewPayerConfigRepoPG(a.pool),
		denial.DeadlineDefaults{
			FirstLevelDays:     a.cfg.FirstLevelDeadlineDays,
			SecondLevelDays:    a.cfg.SecondLevelDeadlineDays,
			ExternalReviewDays: a.cfg.ExternalReviewDeadlineDays,
			UrgentWindowDays:   a.cfg.UrgentDeadlineDays,
		},
	)
}

func (a *app) analyticsService() *analytics.Service {
	return analytics.NewService(
		denial.NewDenialRepoPG(a.pool),
		denial.NewAppealRepoPG(a.pool),
		analytics.NewPatternRepoPG(a.pool),
		analytics.NewStaffProductivityRepoPG(a.pool),
		analytics.NewRevenueRecoveryRepoPG(a.pool),
	)
}

func (a *app) scorer() *risk.Scorer {
	return risk.NewScorer(
		analytics.NewPatternRepoPG(a.pool),
		denial.NewDenialRepoPG(a.pool),
		risk.NewAssessmentRepoPG(a.pool),
		risk.Weights{
			HistoricalDenialRate: a.cfg.WeightHistoricalDenialRate,
			PayerBehavior:        a.cfg.WeightPayerBehavior,
			ProcedureComplexity:  a.cfg.WeightProcedureComplexity,
			Authorization:        a.cfg.WeightAuthorization,
			CodingAccuracy:       a.cfg.WeightCodingAccuracy,
			TimingFactors:        a.cfg.WeightTimingFactors,
			Documentation:        a.cfg.WeightDocumentation,
		},
		a.cfg.RecoverabilityPrior,
		a.cfg.RecoverabilityThreshold,
	)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			count, err := db.NewMigrator(a.pool).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			statuses, err := db.NewMigrator(a.pool).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func parsePeriodFlags(cmd *cobra.Command) (analytics.Period, error) {
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")

	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return analytics.Period{}, fmt.Errorf("invalid --from date %q: %w", fromStr, err)
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return analytics.Period{}, fmt.Errorf("invalid --to date %q: %w", toStr, err)
	}
	if !from.Before(to) {
		return analytics.Period{}, fmt.Errorf("--from must be before --to")
	}
	return analytics.Period{Start: from, End: to}, nil
}

func aggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Recompute analytics rollups",
	}

	patternsCmd := &cobra.Command{
		Use:   "patterns",
		Short: "Recompute denial patterns for a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			period, err := parsePeriodFlags(cmd)
			if err != nil {
				return err
			}
			totalClaims, _ := cmd.Flags().GetInt("total-claims")

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			count, err := a.analyticsService().AggregatePatterns(ctx, period, totalClaims)
			if err != nil {
				return err
			}
			a.logger.Info().
				Int("patterns", count).
				Time("from", period.Start).
				Time("to", period.End).
				Msg("denial patterns recomputed")
			return nil
		},
	}
	patternsCmd.Flags().String("from", "", "Period start (YYYY-MM-DD, inclusive)")
	patternsCmd.Flags().String("to", "", "Period end (YYYY-MM-DD, exclusive)")
	patternsCmd.Flags().Int("total-claims", 0, "Total claim volume for denial rate computation")
	cmd.AddCommand(patternsCmd)

	staffCmd := &cobra.Command{
		Use:   "staff",
		Short: "Recompute staff productivity for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dateStr, _ := cmd.Flags().GetString("date")
			day, err := time.Parse("2006-01-02", dateStr)
			if err != nil {
				return fmt.Errorf("invalid --date %q: %w", dateStr, err)
			}

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			count, err := a.analyticsService().AggregateStaffProductivity(ctx, day, nil)
			if err != nil {
				return err
			}
			a.logger.Info().
				Int("staff", count).
				Str("date", dateStr).
				Msg("staff productivity recomputed")
			return nil
		},
	}
	staffCmd.Flags().String("date", "", "Day to recompute (YYYY-MM-DD)")
	cmd.AddCommand(staffCmd)

	revenueCmd := &cobra.Command{
		Use:   "revenue",
		Short: "Recompute the revenue recovery rollup for a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			period, err := parsePeriodFlags(cmd)
			if err != nil {
				return err
			}

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			rr, err := a.analyticsService().AggregateRevenueRecovery(ctx, period)
			if err != nil {
				return err
			}
			a.logger.Info().
				Int("denials", rr.TotalDenials).
				Float64("denied_amount", rr.TotalDeniedAmount).
				Float64("recovered", rr.TotalRecovered).
				Float64("recovery_rate", rr.RecoveryRate).
				Msg("revenue recovery recomputed")
			return nil
		},
	}
	revenueCmd.Flags().String("from", "", "Period start (YYYY-MM-DD, inclusive)")
	revenueCmd.Flags().String("to", "", "Period end (YYYY-MM-DD, exclusive)")
	cmd.AddCommand(revenueCmd)

	return cmd
}

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Risk and recoverability scoring",
	}

	claimCmd := &cobra.Command{
		Use:   "claim",
		Short: "Assess a claim's denial risk from a JSON description",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var in risk.ClaimInput
			if err := json.Unmarshal(data, &in); err != nil {
				return fmt.Errorf("parse claim input: %w", err)
			}

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			assessment, err := a.scorer().AssessClaimRisk(ctx, in)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(assessment, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	claimCmd.Flags().String("file", "", "Path to a JSON claim description")
	cmd.AddCommand(claimCmd)

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Rescore recoverability for denied claims",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			filter := denial.DenialFilter{}
			if payer, _ := cmd.Flags().GetString("payer"); payer != "" {
				id := denial.PayerID(payer)
				filter.PayerID = &id
			}
			status := denial.ClaimStatusDenied
			filter.ClaimStatus = &status

			count, err := a.scorer().BackfillRecoverability(ctx, filter)
			if err != nil {
				return err
			}
			a.logger.Info().Int("denials", count).Msg("recoverability rescored")
			return nil
		},
	}
	backfillCmd.Flags().String("payer", "", "Restrict to one payer ID")
	cmd.AddCommand(backfillCmd)

	return cmd
}

func urgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "urgent",
		Short: "List open appeals approaching their filing deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			appeals, err := a.denialService().ListUrgentAppeals(ctx)
			if err != nil {
				return err
			}
			if len(appeals) == 0 {
				fmt.Println("No urgent appeals.")
				return nil
			}
			fmt.Printf("%-38s %-38s %-6s %-28s %s\n", "APPEAL", "DENIAL", "LEVEL", "STATUS", "FILING DEADLINE")
			for _, ap := range appeals {
				fmt.Printf("%-38s %-38s %-6d %-28s %s\n",
					ap.ID, ap.DenialID, ap.AppealLevel, ap.Status,
					ap.FilingDeadline.Format("2006-01-02"))
			}
			return nil
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database connectivity and pool health",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := db.CheckHealth(ctx, a.pool)
			out, marshalErr := json.MarshalIndent(stats, "", "  ")
			if marshalErr != nil {
				return marshalErr
			}
			fmt.Println(string(out))
			if err != nil {
				return fmt.Errorf("database unhealthy: %w", err)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}
