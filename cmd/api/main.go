package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classtrack/internal/checkin"
	"classtrack/internal/classroom"
	"classtrack/internal/config"
	"classtrack/internal/csvimport"
	"classtrack/internal/faceclient"
	"classtrack/internal/geoloc"
	"classtrack/internal/httpapi"
	"classtrack/internal/httpmiddleware"
	"classtrack/internal/metrics"
	"classtrack/internal/queue"
	"classtrack/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	var (
		st  classroom.Store
		db  *store.DB
		err error
	)
	if cfg.StoreBackend == "memory" {
		st = store.NewMemory()
		log.Println("using in-memory store")
	} else {
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		st, err = store.NewPostgres(db.Client)
		if err != nil {
			return err
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classtrack:bulk-marks")
	}

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)

	var geo geoloc.Provider
	if cfg.GeoProviderURL != "" {
		geo = geoloc.NewHTTP(cfg.GeoProviderURL)
	} else {
		geo = geoloc.Static{Pos: geoloc.Position{Lat: cfg.GeoStaticLat, Lng: cfg.GeoStaticLng}}
	}

	manager := classroom.NewManager(st)
	manager.OnTransition = func(classID, sessionID string, active bool) {
		if active {
			metrics.SessionStarts.Inc()
			log.Printf("class %s: session %s started", classID, sessionID)
		} else {
			metrics.SessionStops.Inc()
			log.Printf("class %s: session %s stopped", classID, sessionID)
		}
	}

	att := classroom.NewService(st)
	verifier := checkin.NewVerifier()
	ci := checkin.NewService(st, att, verifier, face)
	importer := csvimport.NewImporter(st, q)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := cfg.QueueBackend == "memory" || redisClient.Healthy(c.Request.Context())
		dbHealthy := cfg.StoreBackend == "memory" ||
			(db != nil && db.Client.PingContext(c.Request.Context()) == nil)
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	httpapi.New(cfg, st, manager, att, ci, verifier, importer, geo).Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
