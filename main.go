package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	apirest "github.com/philsgames/questtracker/api/rest"
	"github.com/philsgames/questtracker/api/sse"
	apows "github.com/philsgames/questtracker/api/ws"
	"github.com/philsgames/questtracker/audit"
	"github.com/philsgames/questtracker/cache"
	"github.com/philsgames/questtracker/calendar"
	"github.com/philsgames/questtracker/config"
	dbadapter "github.com/philsgames/questtracker/db"
	"github.com/philsgames/questtracker/docstore"
	"github.com/philsgames/questtracker/game/broadcast"
	"github.com/philsgames/questtracker/game/calsync"
	"github.com/philsgames/questtracker/game/quest"
	"github.com/philsgames/questtracker/game/session"
	"github.com/philsgames/questtracker/game/transfer"
	"github.com/philsgames/questtracker/game/watcher"
	mw "github.com/philsgames/questtracker/middleware"
	"github.com/philsgames/questtracker/model"
	"github.com/philsgames/questtracker/scheduler"
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

	// ---- Calendar ----
	// The tracker must run without it: cal stays a nil interface when
	// the collaborator is disabled, and every consumer tolerates that.
	var cal calendar.Calendar
	var calSvc *calendar.Service
	if cfg.Calendar.Enabled {
		calSvc, err = calendar.NewService(db, cfg.Calendar, logger)
		if err != nil {
			log.Fatalf("calendar: %v", err)
		}
		cal = calSvc
		logger.Info("Calendar initialized")
	} else {
		logger.Info("Calendar disabled, date-gated quests stay hidden")
	}

	// ---- Document Store ----
	bus := docstore.NewBus()
	docs := docstore.New(db, bus, logger)

	// ---- Quest Services ----
	quests := quest.NewStore(docs, cfg.Tracker.FolderName, logger)
	calSync := calsync.New(cal, logger)
	chatPoster := broadcast.NewChatPoster(c, pubsub, cfg.Tracker.AnnounceChan, cfg.Tracker.HistoryLen, logger)
	announcer := broadcast.New(chatPoster, cfg.Tracker.SpeakerLabel, logger)
	transferSvc := transfer.New(quests, logger)

	// This instance holds author authority: it is the single writer
	// for derived state.
	w := watcher.New(quests, cal, calSync, announcer, true, logger)
	w.Attach(bus)
	defer w.Detach(bus)

	// Re-resolve date gates whenever the world date moves, and on a
	// periodic tick to catch anything missed.
	sweep := func() { w.SweepVisibility(context.Background()) }
	if calSvc != nil {
		calSvc.OnDateChange(sweep)
	}
	sched.Schedule("visibility_sweep", cfg.Tracker.SweepInterval, sweep)

	// ---- Sessions / WS Router ----
	sm := session.NewManager(logger)
	wsRouter := apows.NewRouter(logger)
	apows.RegisterNotesHandlers(wsRouter, &apows.NotesDeps{
		Quests: quests,
		SM:     sm,
		Logger: logger,
	})

	relay := apows.NewRelay(pubsub, cfg.Tracker.AnnounceChan, sm, logger)
	relayCtx, relayCancel := context.WithCancel(context.Background())
	defer relayCancel()
	go func() {
		if err := relay.Run(relayCtx); err != nil && relayCtx.Err() == nil {
			logger.Error("announcement relay stopped", zap.Error(err))
		}
	}()

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
	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	questH := apirest.NewQuestHandler(db, quests, auditSvc, logger)
	calH := apirest.NewCalendarHandler(calSvc, logger)
	transferH := apirest.NewTransferHandler(transferSvc, auditSvc, logger)
	adminH := apirest.NewAdminHandler(db, sm, sched, w, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		questsG := api.Group("/quests")
		questsG.Use(mw.Auth(cfg.Security, c))
		questsG.GET("", questH.List)
		questsG.GET("/export", mw.RequireGM(), transferH.Export)
		questsG.POST("/import", mw.RequireGM(), transferH.Import)
		questsG.POST("/reorder", mw.RequireGM(), questH.Reorder)
		questsG.GET("/:id", questH.Get)
		questsG.POST("", mw.RequireGM(), questH.Create)
		questsG.PATCH("/:id", mw.RequireGM(), questH.Patch)
		questsG.DELETE("/:id", mw.RequireGM(), questH.Delete)

		calG := api.Group("/calendar")
		calG.Use(mw.Auth(cfg.Security, c))
		calG.GET("/today", calH.Today)
		calG.POST("/today", mw.RequireGM(), calH.SetDate)
		calG.GET("/events/:dateKey", calH.Events)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Server.AdminIPs), apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/audit", adminH.AuditLog)
		adminG.POST("/sweep", adminH.Sweep)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	// ---- WebSocket ----
	wsH := apows.NewHandler(db, c, cfg.Security, sm, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, cfg.Tracker.AnnounceChan, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
