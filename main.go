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
	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-api/api"
	"kanban-api/gateway"
	"kanban-api/lock"
	"kanban-api/notify"
	"kanban-api/realtime"
	"kanban-api/storage"
)

const (
	defaultLockTTL        = 15 * time.Minute
	defaultUnreadCacheTTL = 5 * time.Minute
	defaultEventsChannel  = "kanban-events"
)

func main() {
	logger := log.New()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		logger.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tasksTable := os.Getenv("TASKS_TABLE")
	columnsTable := os.Getenv("COLUMNS_TABLE")
	boardsTable := os.Getenv("BOARDS_TABLE")
	notificationsTable := os.Getenv("NOTIFICATIONS_TABLE")
	activityQueue := os.Getenv("ACTIVITY_QUEUE")
	if connStr == "" || tasksTable == "" || columnsTable == "" || boardsTable == "" || notificationsTable == "" || activityQueue == "" {
		logger.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, tasksTable, columnsTable, boardsTable, notificationsTable, activityQueue)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		logger.Fatal("missing redis config")
	}
	rc := redis.NewClient(redisOptions(redisConn))

	hub := realtime.NewHub(logger)
	channel := os.Getenv("EVENTS_CHANNEL")
	if channel == "" {
		channel = defaultEventsChannel
	}
	relay := realtime.NewRelay(hub, rc, channel, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)

	lockTTL := envDuration(logger, "LOCK_TTL", defaultLockTTL)
	locks := lock.NewManager(store, hub, lockTTL, logger)

	cacheTTL := envDuration(logger, "UNREAD_CACHE_TTL", defaultUnreadCacheTTL)
	notifications := notify.NewService(store, hub, notify.NewUnreadCache(rc, cacheTTL), logger)

	gw := gateway.New(store, locks, notifications, hub, uuid.NewString, logger)

	testMode := os.Getenv("AUTH0_TEST_MODE") == "1"
	var auth *api.Auth
	if testMode {
		auth = api.NewAuth(nil, "", "")
	} else {
		jwtAudience := os.Getenv("AUTH0_AUDIENCE")
		domain := os.Getenv("AUTH0_DOMAIN")
		if jwtAudience == "" || domain == "" {
			logger.Fatal("missing Auth0 config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			logger.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echoprometheus.NewMiddleware("kanban_api"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, gw, notifications, hub, auth, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// envDuration reads a duration from the environment. A zero value is valid
// and disables the feature the duration guards.
func envDuration(logger *log.Logger, name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		logger.Fatalf("invalid %s: %v", name, err)
	}
	return d
}

// redisOptions parses either a redis URL or an Azure-style
// "host:port,password=...,ssl=true" connection string.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
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
