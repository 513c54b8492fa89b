package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dokterdibya/clinic/internal/config"
	"github.com/dokterdibya/clinic/internal/domain/intake"
	"github.com/dokterdibya/clinic/internal/domain/mrn"
	"github.com/dokterdibya/clinic/internal/platform/auth"
	"github.com/dokterdibya/clinic/internal/platform/db"
	"github.com/dokterdibya/clinic/internal/platform/middleware"
	"github.com/dokterdibya/clinic/internal/platform/phi"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Sunday clinic API server and intake tooling",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(intakeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// buildCodec derives the intake codec from the configured secret. A nil
// codec means plaintext storage; the caller decides whether that is
// acceptable for its environment.
func buildCodec(cfg *config.Config, logger zerolog.Logger) (*phi.Codec, error) {
	key := phi.DeriveKey(cfg.IntakeKey)
	if key == nil {
		logger.Warn().Msg("INTAKE_ENCRYPTION_KEY not set; intake payloads will be stored in plaintext")
		return nil, nil
	}
	return phi.NewCodec(key, cfg.IntakeKeyID)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	codec, err := buildCodec(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize intake encryption")
	}
	if codec != nil {
		logger.Info().Str("key_id", cfg.IntakeKeyID).Msg("intake payload encryption enabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware([]byte(cfg.AuthJWTSecret)))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	apiV1 := e.Group("/api/v1")

	// Intake domain
	intakeStore := intake.NewPGStore(pool, codec, cfg.StorageTimeout, logger)
	intakeSvc := intake.NewService(intakeStore, logger)
	intake.NewHandler(intakeSvc).RegisterRoutes(apiV1)

	// Clinic records and MR-ID allocation
	mrnSvc := mrn.NewService(
		mrn.NewAllocatorPG(pool),
		mrn.NewRecordRepoPG(pool),
		mrn.NewTxRunnerPG(pool),
		logger,
	)
	mrn.NewHandler(mrnSvc).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
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
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// cliStore opens the file-based intake store used by the offline review
// tooling. It reads the same directory the clinic has archived intake
// files in since before the API server existed.
func cliStore(dir string) (*intake.FSStore, zerolog.Logger, error) {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		return nil, logger, err
	}
	if dir == "" {
		dir = cfg.IntakeLogDir
	}
	codec, err := buildCodec(cfg, zerolog.Nop())
	if err != nil {
		return nil, logger, err
	}
	store, err := intake.NewFSStore(dir, codec, logger)
	if err != nil {
		return nil, logger, err
	}
	return store, logger, nil
}

func parseCliFilter(cmd *cobra.Command) (intake.Filter, error) {
	var f intake.Filter
	if v, _ := cmd.Flags().GetString("date-from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, fmt.Errorf("--date-from must be YYYY-MM-DD")
		}
		f.From = &t
	}
	if v, _ := cmd.Flags().GetString("date-to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, fmt.Errorf("--date-to must be YYYY-MM-DD")
		}
		end := t.Add(24*time.Hour - time.Nanosecond)
		f.To = &end
	}
	risk, _ := cmd.Flags().GetString("risk")
	switch risk {
	case "", "high", "normal":
		f.Risk = risk
	default:
		return f, fmt.Errorf("--risk must be high or normal")
	}
	f.Name, _ = cmd.Flags().GetString("name")
	f.Phone, _ = cmd.Flags().GetString("phone")
	return f, nil
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("date-from", "", "Only submissions on or after this date (YYYY-MM-DD)")
	cmd.Flags().String("date-to", "", "Only submissions on or before this date (YYYY-MM-DD)")
	cmd.Flags().String("risk", "", "Filter by risk: high or normal")
	cmd.Flags().String("name", "", "Filter by patient name substring")
	cmd.Flags().String("phone", "", "Filter by phone substring")
	cmd.Flags().String("dir", "", "Intake directory (defaults to INTAKE_LOG_DIR)")
}

func intakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intake",
		Short: "Review and export patient intake submissions",
	}
	cmd.AddCommand(intakeListCmd())
	cmd.AddCommand(intakeShowCmd())
	cmd.AddCommand(intakeExportCmd())
	cmd.AddCommand(intakeImportCmd())
	return cmd
}

func intakeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List intake submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			store, logger, err := cliStore(dir)
			if err != nil {
				return err
			}
			f, err := parseCliFilter(cmd)
			if err != nil {
				return err
			}

			svc := intake.NewService(store, logger)

			if out, _ := cmd.Flags().GetString("export"); out != "" {
				file, err := os.Create(out)
				if err != nil {
					return err
				}
				defer file.Close()
				n, err := svc.Export(context.Background(), f, file)
				if err != nil {
					return err
				}
				fmt.Printf("Exported %d row(s) to %s.\n", n, out)
				return nil
			}

			subs, err := svc.List(context.Background(), f)
			if err != nil {
				return err
			}
			if len(subs) == 0 {
				fmt.Println("No intake submissions found.")
				return nil
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(subs)
			}

			fmt.Println("submissionId | receivedAt | status | risk | name | phone | EDD")
			for _, sub := range subs {
				fmt.Println(summaryLine(sub))
			}
			fmt.Println("\nUse \"intake show --id <submissionId>\" for full detail.")
			return nil
		},
	}
	addFilterFlags(cmd)
	cmd.Flags().Bool("json", false, "Print submissions as JSON")
	cmd.Flags().String("export", "", "Write matching submissions to a CSV file instead of printing")
	return cmd
}

func summaryLine(sub *intake.Submission) string {
	risk := "normal"
	if sub.IsHighRisk() {
		risk = "HIGH-RISK"
	}
	name := sub.FullName()
	if name == "" {
		name = "(no name)"
	}
	phone := sub.Phone()
	if phone == "" {
		phone = "-"
	}
	payload, _ := sub.PayloadMap()
	meta, _ := payload["metadata"].(map[string]interface{})
	eddInfo, _ := meta["edd"].(map[string]interface{})
	edd, _ := eddInfo["value"].(string)
	if edd == "" {
		edd, _ = payload["edd"].(string)
	}
	if edd == "" {
		edd = "-"
	}
	return fmt.Sprintf("%s | %s | %s | %s | %s | %s | EDD %s",
		sub.SubmissionID, sub.ReceivedAt.Format(time.RFC3339), sub.Status, risk, name, phone, edd)
}

func intakeShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show one intake submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			dir, _ := cmd.Flags().GetString("dir")
			store, _, err := cliStore(dir)
			if err != nil {
				return err
			}

			sub, err := store.Get(context.Background(), id)
			if err != nil {
				return err
			}

			if raw, _ := cmd.Flags().GetBool("raw"); raw {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(sub)
			}
			printSubmission(sub)
			return nil
		},
	}
	cmd.Flags().String("id", "", "Submission id or unique prefix")
	cmd.Flags().Bool("raw", false, "Dump the full decrypted document as JSON")
	cmd.Flags().String("dir", "", "Intake directory (defaults to INTAKE_LOG_DIR)")
	return cmd
}

func printSubmission(sub *intake.Submission) {
	payload, _ := sub.PayloadMap()
	meta, _ := payload["metadata"].(map[string]interface{})
	eddInfo, _ := meta["edd"].(map[string]interface{})
	totals, _ := meta["obstetricTotals"].(map[string]interface{})

	val := func(m map[string]interface{}, key string) string {
		if m == nil || m[key] == nil {
			return "-"
		}
		return fmt.Sprintf("%v", m[key])
	}

	fmt.Printf("Submission: %s\n", sub.SubmissionID)
	fmt.Printf("Received : %s\n", sub.ReceivedAt.Format(time.RFC3339))
	fmt.Printf("Status   : %s\n", sub.Status)
	fmt.Println("--- Patient Profile ---")
	fmt.Printf("Name   : %s\n", val(payload, "full_name"))
	fmt.Printf("Phone  : %s\n", val(payload, "phone"))
	fmt.Printf("DOB    : %s (age %s)\n", val(payload, "dob"), val(payload, "age"))
	fmt.Printf("Address: %s\n", val(payload, "address"))
	fmt.Println("--- Current Pregnancy ---")
	fmt.Printf("EDD         : %s\n", val(eddInfo, "value"))
	fmt.Printf("EDD source  : %s\n", val(eddInfo, "source"))
	fmt.Printf("GA first chk: %s\n", val(payload, "first_check_ga"))
	fmt.Printf("BMI         : %s (%s)\n", val(payload, "bmi"), val(meta, "bmiCategory"))
	fmt.Println("--- Obstetric Totals ---")
	fmt.Printf("Gravida: %s\n", val(totals, "gravida"))
	fmt.Printf("Para   : %s\n", val(totals, "para"))
	fmt.Printf("Abortus: %s\n", val(totals, "abortus"))
	fmt.Printf("Living : %s\n", val(totals, "living"))
	if flags, ok := meta["riskFlags"].([]interface{}); ok && len(flags) > 0 {
		fmt.Println("Risk Flags:")
		for _, flag := range flags {
			fmt.Printf("  - %v\n", flag)
		}
	}
	fmt.Println("--- Audit ---")
	fmt.Printf("Client IP : %s\n", orDash(sub.Client.IP))
	fmt.Printf("User-Agent: %s\n", orDash(sub.Client.UserAgent))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func intakeExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export intake submissions as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			dir, _ := cmd.Flags().GetString("dir")
			store, logger, err := cliStore(dir)
			if err != nil {
				return err
			}
			f, err := parseCliFilter(cmd)
			if err != nil {
				return err
			}

			file, err := os.Create(out)
			if err != nil {
				return err
			}
			defer file.Close()

			svc := intake.NewService(store, logger)
			n, err := svc.Export(context.Background(), f, file)
			if err != nil {
				return err
			}
			fmt.Printf("Exported %d row(s) to %s.\n", n, out)
			return nil
		},
	}
	addFilterFlags(cmd)
	cmd.Flags().String("out", "", "Destination CSV file")
	return cmd
}

func intakeImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Project a submission onto EMR import structures",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			dir, _ := cmd.Flags().GetString("dir")
			store, logger, err := cliStore(dir)
			if err != nil {
				return err
			}

			svc := intake.NewService(store, logger)
			m, err := svc.Materialize(context.Background(), id)
			if err != nil {
				return err
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(m)
			}
			fmt.Printf("[%s] Ready for EMR import\n", m.SubmissionID)
			fmt.Printf("Patient profile: %+v\n", m.PatientProfile)
			fmt.Printf("Pregnancy core : %+v\n", m.Pregnancy)
			fmt.Printf("Medications    : %v\n", m.Medications)
			fmt.Printf("Obstetric hx   : %+v\n", m.ObstetricHistory)
			fmt.Printf("Prenatal visits: %+v\n", m.PrenatalVisits)
			fmt.Printf("Lab results    : %+v\n", m.LabResults)
			return nil
		},
	}
	cmd.Flags().String("id", "", "Submission id or unique prefix")
	cmd.Flags().Bool("json", false, "Print the projection as JSON")
	cmd.Flags().String("dir", "", "Intake directory (defaults to INTAKE_LOG_DIR)")
	return cmd
}
