package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/alterra/internal/api"
	"github.com/charlesng35/alterra/internal/app"
	"github.com/charlesng35/alterra/internal/app/maintenance"
	"github.com/charlesng35/alterra/internal/bot"
	"github.com/charlesng35/alterra/internal/database"
	"github.com/charlesng35/alterra/internal/notify"
	"github.com/charlesng35/alterra/internal/services"
	"github.com/charlesng35/alterra/internal/verification"
	"github.com/charlesng35/alterra/pkg/logger"
)

// runtimeStack bundles the long-lived components supervised by run.
type runtimeStack struct {
	DB       *gorm.DB
	AuditSvc *services.AuditService
	Registry *verification.Registry
	Machine  *verification.Machine
	Bot      *bot.Bot
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime initialises the audit store, the verification core, the
// Discord session and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	trigger, err := verification.ParseCompletionTrigger(cfg.Verification.CompletionTrigger)
	if err != nil {
		return nil, err
	}

	var auditor services.Auditor
	var pruner maintenance.AuditPruner
	if cfg.Database.Enabled {
		stack.DB, err = initialiseDatabase(cfg)
		if err != nil {
			return nil, err
		}
		stack.AuditSvc, err = services.NewAuditService(stack.DB)
		if err != nil {
			return nil, fmt.Errorf("initialise audit service: %w", err)
		}
		auditor = stack.AuditSvc
		pruner = stack.AuditSvc
	} else {
		log.Info("audit trail disabled")
	}

	stack.Registry = verification.NewRegistry(verification.WithSessionTTL(cfg.Verification.SessionTTL))

	stack.Bot, err = bot.New(bot.Config{
		Token:          cfg.Discord.Token,
		GuildID:        cfg.Discord.GuildID,
		RoleID:         cfg.Discord.RoleID,
		SetupChannelID: cfg.Discord.SetupChannelID,
		BaseURL:        cfg.Verification.BaseURL,
		CommandPrefix:  cfg.Discord.CommandPrefix,
	}, stack.Registry, bot.WithAuditor(auditor))
	if err != nil {
		return nil, fmt.Errorf("initialise discord bot: %w", err)
	}

	dispatcher, err := notify.NewDispatcher(stack.Bot,
		notify.WithFallbackChannel(cfg.Discord.SetupChannelID),
		notify.WithTimeout(cfg.Verification.NotifyTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise notification dispatcher: %w", err)
	}

	stack.Machine, err = verification.NewMachine(stack.Registry, dispatcher, verification.WithCompletionTrigger(trigger))
	if err != nil {
		return nil, fmt.Errorf("initialise verification machine: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.Registry, pruner,
		maintenance.WithSessionSchedule(cfg.Maintenance.SessionSweepSchedule),
		maintenance.WithAuditSchedule(cfg.Maintenance.AuditCleanupSchedule),
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
	)

	stack.Router, err = api.NewRouter(cfg, stack.Machine, stack.AuditSvc)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	log.Info("verification core ready",
		zap.String("completion_trigger", string(trigger)),
		zap.Duration("session_ttl", cfg.Verification.SessionTTL),
	)

	success = true
	return stack, nil
}

// Shutdown runs a final cleanup pass and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Prepare(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("prepare database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	var auth app.DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		auth = cfg.Database.Postgres
	case "mysql":
		auth = cfg.Database.MySQL
	default:
		// Leave driver as-is to surface unsupported driver error during open.
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = auth.Password
	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
