package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/expenseflow/expenseflow/internal"
	"github.com/expenseflow/expenseflow/internal/approval"
	approvalpostgres "github.com/expenseflow/expenseflow/internal/approval/postgres"
	"github.com/expenseflow/expenseflow/internal/auth"
	"github.com/expenseflow/expenseflow/internal/company"
	companypostgres "github.com/expenseflow/expenseflow/internal/company/postgres"
	"github.com/expenseflow/expenseflow/internal/core/events"
	"github.com/expenseflow/expenseflow/internal/exchange"
	"github.com/expenseflow/expenseflow/internal/expense"
	expensepostgres "github.com/expenseflow/expenseflow/internal/expense/postgres"
	"github.com/expenseflow/expenseflow/internal/notification"
	"github.com/expenseflow/expenseflow/internal/transport/rest"
	"github.com/expenseflow/expenseflow/internal/user"
	userpostgres "github.com/expenseflow/expenseflow/internal/user/postgres"
	"github.com/expenseflow/expenseflow/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Router *chi.Mux
	Mailer *notification.Mailer
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		deps.Mailer.Shutdown()
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	log := logger.L()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm over pgx pool: %w", err)
	}

	// async side effects: event bus + mail worker pool
	bus := events.NewEventBus(log)
	mailer := notification.NewMailer(config.Mail, log)
	notification.NewSubscriber(mailer, log).Register(bus)

	// currency collaborators, both best-effort with TTL caches
	rates := exchange.NewCachedRateSource(
		exchange.NewRateAPIClient(config.Exchange.RatesAPIURL, config.Exchange.RequestTimeout),
		config.Exchange.CacheTTL,
	)
	converter := exchange.NewService(rates, log)
	countries := exchange.NewCountriesClient(config.Exchange.CountriesAPIURL, config.Exchange.RequestTimeout, config.Exchange.CacheTTL)

	userRepo := userpostgres.NewUserRepository(gormDB)
	companyRepo := companypostgres.NewCompanyRepository(gormDB)
	ruleRepo := approvalpostgres.NewRuleRepository(gormDB)
	expenseRepo := expensepostgres.NewExpenseRepository(gormDB)

	approvalSvc := approval.NewService(ruleRepo, userRepo, log)
	companySvc := company.NewService(companyRepo, countries, log)
	userSvc := user.NewService(userRepo, companyCreator{companySvc}, ruleBootstrap{approvalSvc}, bus, config.Security.BCryptCost, log)
	expenseSvc := expense.NewService(expenseRepo, userSvc, approvalSvc, companySvc, converter, bus, log)

	tokenGen := auth.NewJWTTokenGenerator(
		config.Security.AccessTokenSecret,
		config.Security.RefreshTokenSecret,
		config.Security.AccessTokenDuration,
		config.Security.RefreshTokenDuration,
	)
	authSvc := auth.NewService(userRepo, tokenGen)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, db.DB, rest.Handlers{
		Auth:     auth.NewHandler(authSvc),
		User:     user.NewHandler(userSvc),
		Company:  company.NewHandler(companySvc),
		Approval: approval.NewHandler(approvalSvc),
		Expense:  expense.NewHandler(expenseSvc),
	}, log)

	return &Dependencies{
		Config: config,
		Logger: log,
		DB:     db,
		Router: router,
		Mailer: mailer,
	}, nil
}

// ruleBootstrap narrows the approval service to the single call user signup
// needs, keeping the user package from importing approval.
type ruleBootstrap struct {
	svc *approval.Service
}

func (b ruleBootstrap) EnsureDefault(companyID int64) error {
	_, err := b.svc.EnsureDefault(companyID)
	return err
}

// companyCreator does the same for the company service: signup only needs the
// id of the company it just created.
type companyCreator struct {
	svc *company.Service
}

func (c companyCreator) Create(ctx context.Context, name, currency string) (int64, error) {
	comp, err := c.svc.Create(ctx, name, currency)
	if err != nil {
		return 0, err
	}
	return comp.ID, nil
}

// initDB opens the pgx-backed pool used by gorm and the health check.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
