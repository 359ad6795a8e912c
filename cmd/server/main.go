package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/config"
	"github.com/garyjia/expense-approval/internal/infrastructure/external/exchange"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/migrations"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	httpserver "github.com/garyjia/expense-approval/internal/interfaces/http"
	"github.com/garyjia/expense-approval/internal/report"
	"github.com/garyjia/expense-approval/pkg/database"
	"github.com/garyjia/expense-approval/pkg/logging"
)

func main() {
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting expense approval service",
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Path))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(migrations.Schema); err != nil {
		logger.Fatal("failed to run database migrations", zap.Error(err))
	}
	if cfg.Database.SeedDemoData {
		if err := db.Migrate(migrations.DemoSeed); err != nil {
			logger.Fatal("failed to seed demo data", zap.Error(err))
		}
	}

	store := sqlite.NewDB(db.DB, logger)

	expenseRepo := repository.NewExpenseRepository(store, logger)
	approvalRepo := repository.NewApprovalRepository(store, logger)
	ruleRepo := repository.NewRuleRepository(store, logger)
	userRepo := repository.NewUserRepository(store, logger)
	companyRepo := repository.NewCompanyRepository(store, logger)
	categoryRepo := repository.NewCategoryRepository(store, logger)

	gateway := exchange.NewClient(exchange.Config{
		BaseURL:  cfg.Exchange.BaseURL,
		Timeout:  cfg.Exchange.Timeout,
		CacheTTL: cfg.Exchange.CacheTTL,
	}, logger)

	planner := workflow.NewPlanner(userRepo, logger)
	engine := workflow.NewEngine(expenseRepo, approvalRepo, store, logger)

	expenseService := service.NewExpenseService(
		expenseRepo, approvalRepo, ruleRepo, userRepo, companyRepo, categoryRepo,
		gateway, planner, store, logger,
	)
	ruleService := service.NewRuleService(ruleRepo, userRepo, logger)
	userService := service.NewUserService(userRepo, logger)
	exporter := report.NewExporter(expenseRepo, userRepo, companyRepo, logger)

	server := httpserver.NewServer(
		httpserver.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		expenseService, engine, ruleService, userService, exporter, companyRepo,
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}

	logger.Info("server exited")
}
