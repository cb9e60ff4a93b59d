package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"cineview/api"
	"cineview/config"
	"cineview/handlers"
	"cineview/internal/database"
	"cineview/services/cache"
	"cineview/services/movies"
	"cineview/services/sources"
	"cineview/services/tmdb"
	"cineview/services/watchmode"
	"cineview/utils"
)

func main() {
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] config: %v", err)
	}

	if cfg.Log.File != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		}))
	}

	db, err := database.NewDB(database.Config{DatabasePath: cfg.Database.Path})
	if err != nil {
		log.Fatalf("[main] database: %v", err)
	}
	defer db.Close()

	fs := afero.NewOsFs()
	movieCache := cache.New("movies", fs, filepath.Join(cfg.Cache.Dir, "movies"), cache.Options{
		MemorySize:  cfg.Cache.MemorySize,
		MemoryTTL:   cfg.Cache.MemoryTTL(),
		SoftTTL:     cfg.Cache.SoftTTL(),
		HardTTL:     cfg.Cache.HardTTL(),
		SoftTimeout: cfg.Cache.SoftTimeout(),
	})
	sourcesCache := cache.New("sources", fs, filepath.Join(cfg.Cache.Dir, "sources"), cache.Options{
		MemorySize:  cfg.Cache.MemorySize,
		MemoryTTL:   cfg.Cache.MemoryTTL(),
		SoftTTL:     cfg.Cache.SoftTTL(),
		HardTTL:     cfg.Cache.HardTTL(),
		SoftTimeout: cfg.Cache.SoftTimeout(),
	})
	// Id mappings are effectively immutable, so they live much longer than
	// the content they resolve.
	mult := time.Duration(cfg.Cache.StableIDMultiplier)
	idCache := cache.New("watchmode_ids", fs, filepath.Join(cfg.Cache.Dir, "watchmode_ids"), cache.Options{
		MemorySize:  cfg.Cache.MemorySize,
		MemoryTTL:   cfg.Cache.MemoryTTL() * mult,
		SoftTTL:     cfg.Cache.SoftTTL() * mult,
		HardTTL:     cfg.Cache.HardTTL() * mult,
		SoftTimeout: cfg.Cache.SoftTimeout(),
	})

	httpc := &http.Client{Timeout: 15 * time.Second}
	tmdbClient := tmdb.NewClient(cfg.TMDB, cfg.Languages.Default, httpc)
	watchmodeClient := watchmode.NewClient(cfg.Watchmode, httpc)

	importer := movies.NewImporter(tmdbClient, db.Movies, cfg.Languages.Supported, cfg.Languages.Default)
	importer.Start()
	defer importer.Stop()

	movieService := movies.NewService(movieCache, db.Movies, tmdbClient, importer, cfg.Languages.Default)
	sourceService := sources.NewService(sourcesCache, idCache, watchmodeClient)

	router := utils.NewRouter(utils.RouterOptions{
		AllowedOrigins: cfg.Server.CORSOrigins,
		Ping:           db.Ping,
	})
	router.Use(api.TraceMiddleware())
	router.Use(api.RecoveryMiddleware())
	router.Use(api.RateLimitMiddleware(api.NewIPRateLimiter(cfg.Server.RateLimitPerMinute, cfg.Server.RateLimitBurst)))

	movieHandler := handlers.NewMovieHandler(movieService, sourceService)
	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(api.UserContextMiddleware(cfg.Auth.JWTSecret, cfg.Languages.Supported, cfg.Languages.Default))
	apiRouter.HandleFunc("/movies/{id}", movieHandler.GetMovie).Methods(http.MethodGet, http.MethodOptions)
	apiRouter.HandleFunc("/movies/{id}/sources", movieHandler.GetSources).Methods(http.MethodGet, http.MethodOptions)

	adminHandler := handlers.NewAdminHandler(movieCache, sourcesCache, idCache)
	adminRouter := apiRouter.PathPrefix("/admin").Subrouter()
	adminRouter.Use(api.AdminOnlyMiddleware(cfg.Auth.JWTSecret))
	adminRouter.HandleFunc("/cache/clear", adminHandler.ClearCache).Methods(http.MethodPost)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("[main] listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("[main] shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("[main] shutdown: %v", err)
	}
}
