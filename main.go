package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"timeline-api/api"
	"timeline-api/storage"
	"timeline-api/store"
)

// boardResolver adapts the concrete board registry to the handler-facing
// resolver interface.
type boardResolver struct {
	registry *store.Registry
}

func (r boardResolver) Board(ctx context.Context, boardID string) api.Board {
	return r.registry.Board(ctx, boardID)
}

func redisOptionsFromEnv(connStr string) *redis.Options {
	opts, err := redis.ParseURL(connStr)
	if err == nil {
		return opts
	}
	// Azure-style connection strings are comma separated key=value pairs
	// after the host.
	parts := strings.Split(connStr, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func newAdapter(redisClient *redis.Client) storage.Adapter {
	backend := strings.ToLower(os.Getenv("STORAGE_BACKEND"))
	switch backend {
	case "", "redis":
		if redisClient == nil {
			log.Fatal("missing redis config")
		}
		return storage.NewRedis(redisClient, os.Getenv("CHANGE_CHANNEL"))
	case "table":
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		tasksTable := os.Getenv("TASKS_TABLE")
		lanesTable := os.Getenv("LANES_TABLE")
		if connStr == "" || tasksTable == "" || lanesTable == "" {
			log.Fatal("missing table storage config")
		}
		adapter, err := storage.NewTable(connStr, tasksTable, lanesTable, os.Getenv("CHANGE_QUEUE"))
		if err != nil {
			log.Fatalf("table storage: %v", err)
		}
		return adapter
	default:
		log.Fatalf("unsupported STORAGE_BACKEND: %s", backend)
		return nil
	}
}

func newAuth() *api.Auth {
	if os.Getenv("AUTH_TEST_MODE") == "1" || os.Getenv("LOCAL_AUTH_MODE") != "" {
		return api.NewAuth(nil, "", "")
	}
	audience := os.Getenv("AUTH0_AUDIENCE")
	domain := os.Getenv("AUTH0_DOMAIN")
	if audience == "" || domain == "" {
		log.Fatal("missing Auth0 config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, audience, "https://"+domain+"/")
}

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	var redisClient *redis.Client
	if connStr := os.Getenv("REDIS_CONNECTION_STRING"); connStr != "" {
		redisClient = redis.NewClient(redisOptionsFromEnv(connStr))
	}

	adapter := newAdapter(redisClient)

	var deduper api.Deduper
	if redisClient != nil {
		deduper = api.NewRedisDeduper(redisClient, envDur("DEDUPER_TTL", 24*time.Hour))
	}

	auth := newAuth()

	logger := log.New()
	registry := store.NewRegistry(adapter, logger)
	defer registry.Close()

	gestures := api.Gestures{SnapMinutes: envInt("SNAP_MINUTES", 15)}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echoprometheus.NewMiddleware("timeline_api"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, boardResolver{registry: registry}, auth, deduper, gestures, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
