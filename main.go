package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	apirest "github.com/lumigames/petrealm/server/api/rest"
	"github.com/lumigames/petrealm/server/audit"
	"github.com/lumigames/petrealm/server/cache"
	"github.com/lumigames/petrealm/server/config"
	dbadapter "github.com/lumigames/petrealm/server/db"
	"github.com/lumigames/petrealm/server/game/account"
	"github.com/lumigames/petrealm/server/game/item"
	"github.com/lumigames/petrealm/server/game/pet"
	"github.com/lumigames/petrealm/server/game/quest"
	"github.com/lumigames/petrealm/server/game/reward"
	mw "github.com/lumigames/petrealm/server/middleware"
	"github.com/lumigames/petrealm/server/model"
	"github.com/lumigames/petrealm/server/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(nil)

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Services ----
	accounts := account.NewService(db, logger)
	items := item.NewInventoryService(db, logger)
	pets := pet.NewService(db, logger)
	resolver := reward.NewResolver(accounts, items, pets, logger)
	catalog := quest.NewCatalog(db, c, cfg.Quest.DefinitionCacheTTL, logger)
	records := quest.NewRecords(db, catalog, logger)
	quests := quest.NewService(db, catalog, records, resolver, accounts, c, pubsub, logger)

	// The engine never ticks on its own; the scheduler drives recurring
	// quest resets.
	sched.AddTicker("quest_reset", cfg.Quest.ResetCheckInterval, func() {
		resets, err := quests.ResetDailyWeeklyQuests(context.Background())
		if err != nil {
			logger.Error("quest reset sweep failed", zap.Error(err))
			return
		}
		if len(resets) > 0 {
			logger.Info("quest reset sweep", zap.Int("count", len(resets)))
		}
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security, quests, logger)
	questH := apirest.NewQuestHandler(quests, accounts, auditSvc, logger)
	adminH := apirest.NewAdminHandler(db, quests, sched, auditSvc, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		questsG := api.Group("/quests")
		questsG.Use(mw.Auth(cfg.Security, c))
		questsG.GET("", questH.List)
		questsG.GET("/available", questH.Available)
		questsG.POST("/action", questH.Action)
		questsG.POST("/:quest_id/activate", questH.Activate)
		questsG.POST("/:quest_id/claim", questH.Claim)
		questsG.GET("/stats", questH.Stats)
		questsG.GET("/search", questH.Search)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Security.AdminAllowedIPs))
		adminG.Use(apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.POST("/quests", adminH.CreateQuest)
		adminG.PUT("/quests/:quest_id", adminH.UpdateQuest)
		adminG.DELETE("/quests/:quest_id", adminH.DeleteQuest)
		adminG.POST("/quests/reset", adminH.TriggerReset)
		adminG.GET("/metrics", adminH.Metrics)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
