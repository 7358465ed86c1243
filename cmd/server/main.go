/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the recipe costing server, and offers one-shot
  administrative commands on the same configuration.

COMMANDS:
  serve      HTTP API (default when no command is given)
  migrate    Apply pending schema migrations and report versions
  seed       Load the construction presets (and demo prices)
  calculate  Print one breakdown as JSON to stdout

STARTUP SEQUENCE (serve):
  1. Load .env, config file, environment and flags
  2. Build the logger
  3. Open the SQLite catalog (and the Postgres price list if configured)
  4. Create the engine and API handler
  5. Start server with graceful shutdown

CONFIGURATION:
  See config/config.go. Flags override environment (COSTING_*), which
  overrides the config file.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close store connections
  4. Exit

EXAMPLES:
  # Run with file database
  ./server serve --db=./data/costing.db

  # Demo data, then price 120 m of DN300 pipe
  ./server seed --db=costing.db
  ./server calculate --db=costing.db --template=pipe-laying --variant=dn300-pe \
      --quantity=120 --tenant=demo --date=2024-07-01

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration keys
  - store/sqlite/sqlite.go: Catalog store
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/warp/recipe-costing/api"
	"github.com/warp/recipe-costing/config"
	"github.com/warp/recipe-costing/construction"
	"github.com/warp/recipe-costing/factory"
	"github.com/warp/recipe-costing/formula"
	"github.com/warp/recipe-costing/generic"
	"github.com/warp/recipe-costing/store/postgres"
	"github.com/warp/recipe-costing/store/sqlite"
)

var (
	cfgFile string
	v       = config.New()
	cfg     *config.Config
	logger  zerolog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "server",
		Short:             "Parametric recipe costing engine",
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
		RunE:              runServe,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml)")
	flags.Int("port", 0, "HTTP server port")
	flags.String("db", "", "SQLite database path, \":memory:\" allowed")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (console, json)")
	_ = v.BindPFlag("server.port", flags.Lookup("port"))
	_ = v.BindPFlag("store.sqlite_path", flags.Lookup("db"))
	_ = v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("logging.format", flags.Lookup("log-format"))

	root.AddCommand(serveCmd(), migrateCmd(), seedCmd(), calculateCmd())
	return root
}

func initConfig(_ *cobra.Command, _ []string) error {
	config.LoadDotEnv()
	c, err := config.Read(v, cfgFile)
	if err != nil {
		return err
	}
	l, err := config.NewLogger(c.Logging)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	return nil
}

// =============================================================================
// WIRING
// =============================================================================

type priceList interface {
	generic.PriceStore
	generic.PriceWriter
}

type app struct {
	catalog *sqlite.Store
	prices  priceList
	engine  *generic.Engine
	factory *factory.TemplateFactory
	closers []func()
}

func openApp(ctx context.Context) (*app, error) {
	catalog, err := sqlite.New(cfg.Store.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &app{catalog: catalog, prices: catalog}
	a.closers = append(a.closers, func() { catalog.Close() })

	if cfg.Prices.Driver == config.PriceDriverPostgres {
		pg, err := postgres.New(ctx, cfg.Prices.DatabaseURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to connect price list: %w", err)
		}
		a.prices = pg
		a.closers = append(a.closers, pg.Close)
	}

	evaluator := formula.New(cfg.Formula)
	a.engine = construction.NewEngine(catalog, a.prices)
	a.engine.Evaluator = evaluator
	a.engine.Logger = logger
	a.factory = &factory.TemplateFactory{Evaluator: evaluator}

	logger.Debug().
		Str("sqlite_path", cfg.Store.SQLitePath).
		Str("prices_driver", cfg.Prices.Driver).
		Msg("stores opened")
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// =============================================================================
// SERVE
// =============================================================================

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	handler := api.NewHandler(a.engine, a.catalog, a.prices)
	handler.Factory = a.factory
	handler.DefaultTopN = cfg.Suggest.DefaultTopN

	router := api.NewRouter(handler, api.RouterOptions{
		Logger:      logger,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// =============================================================================
// MIGRATE & SEED
// =============================================================================

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Open every configured store, which applies the embedded goose
migrations, and report the resulting schema version.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			version, err := a.catalog.SchemaVersion()
			if err != nil {
				return err
			}
			logger.Info().Int64("version", version).Str("store", "sqlite").Msg("catalog schema up to date")
			if cfg.Prices.Driver == config.PriceDriverPostgres {
				logger.Info().Str("store", "postgres").Msg("price list schema up to date")
			}
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the construction presets and the demo price list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reset, _ := cmd.Flags().GetBool("reset")
			noPrices, _ := cmd.Flags().GetBool("no-prices")
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if reset {
				if err := a.catalog.Reset(ctx); err != nil {
					return fmt.Errorf("reset: %w", err)
				}
			}
			var prices generic.PriceWriter = a.prices
			if noPrices {
				prices = nil
			}
			if err := api.Seed(ctx, a.factory, a.catalog, prices); err != nil {
				return err
			}
			logger.Info().Bool("prices", !noPrices).Str("tenant", construction.DemoTenant).Msg("presets loaded")
			return nil
		},
	}
	cmd.Flags().Bool("reset", false, "clear the catalog first")
	cmd.Flags().Bool("no-prices", false, "skip the demo price list")
	return cmd
}

// =============================================================================
// CALCULATE
// =============================================================================

func calculateCmd() *cobra.Command {
	var (
		templateKey string
		variantKey  string
		quantity    float64
		tenant      string
		date        string
		params      string
	)
	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Print one breakdown as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var overrides generic.Params
			if params != "" {
				if err := json.Unmarshal([]byte(params), &overrides); err != nil {
					return &generic.ValidationError{Field: "params", Message: err.Error()}
				}
			}
			at, err := generic.ResolveReferenceDate(date, "", time.Now())
			if err != nil {
				return err
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			b, err := a.engine.Calculate(ctx, generic.CalculateRequest{
				TemplateKey:   templateKey,
				Quantity:      quantity,
				VariantKey:    variantKey,
				Params:        overrides,
				Tenant:        generic.TenantID(tenant),
				ReferenceDate: at,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(api.ToBreakdownDTO(b))
		},
	}
	cmd.Flags().StringVar(&templateKey, "template", "", "template key (required)")
	cmd.Flags().StringVar(&variantKey, "variant", "", "variant key")
	cmd.Flags().Float64Var(&quantity, "quantity", 1, "requested quantity")
	cmd.Flags().StringVar(&tenant, "tenant", "", "price list tenant (required)")
	cmd.Flags().StringVar(&date, "date", "", "reference date, YYYY-MM-DD or RFC 3339")
	cmd.Flags().StringVar(&params, "params", "", `override params as JSON, e.g. '{"dn": 250}'`)
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
