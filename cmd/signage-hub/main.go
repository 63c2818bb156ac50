package main

import (
	"context"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/iot-for-tillgenglighet/messaging-golang/pkg/messaging"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/application"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/hub"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/config"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/directory"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/mqtt"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/repositories/workbook"
	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/permissions"
)

func main() {

	serviceName := "signage-hub"

	cfg, err := config.Load(serviceName)
	if err != nil {
		logging.NewLogger("info").Fatalf("Failed to load configuration: %s", err.Error())
	}

	log := logging.NewLogger(cfg.LogLevel)
	log.Infof("Starting up %s ...", serviceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := createStore(cfg, log)
	resolver := createResolver(ctx, cfg, log)
	go resolver.Run(ctx, cfg.Permissions.SweepInterval)

	registry := hub.NewRegistry(log)
	go registry.Run(ctx, cfg.Connections.SweepInterval, cfg.Connections.StaleAfter)

	var messenger application.MessagingContext
	if os.Getenv("RABBITMQ_HOST") != "" {
		msgCtx, err := messaging.Initialize(messaging.LoadConfiguration(serviceName))
		if err != nil {
			log.Errorf("Failed to connect to message queue, alert changes will not be published: %s", err.Error())
		} else {
			defer msgCtx.Close()
			messenger = msgCtx
		}
	}

	if cfg.MQTT.Broker != "" {
		bridge := mqtt.NewBridge(cfg.MQTT, registry, log)
		go func() {
			if err := bridge.Start(ctx); err != nil {
				log.Errorf("MQTT bridge stopped: %s", err.Error())
			}
		}()
		defer bridge.Stop()
	}

	service := application.NewService(store, hub.NewHub(registry, store, log), messenger, application.ServiceOptions{
		StoreTimeout:    cfg.StoreTimeout,
		DefaultSlideID:  cfg.DefaultSlideID,
		DefaultLocation: cfg.DefaultLocation,
	}, log)

	application.CreateRouterAndStartServing(log, service, resolver, application.RouterOptions{
		Port:               cfg.Port,
		AuthEmailHeader:    cfg.AuthEmailHeader,
		AllowedEmailDomain: cfg.AllowedEmailDomain,
		Stream: application.StreamOptions{
			Heartbeat: cfg.Connections.Heartbeat,
			QueueSize: cfg.Connections.QueueSize,
		},
	})
}

func createStore(cfg *config.Config, log logging.Logger) database.Datastore {
	switch cfg.StoreDriver {
	case "workbook":
		store, err := workbook.NewStore(cfg.WorkbookPath, log)
		if err != nil {
			log.Fatalf("Failed to open workbook %s: %s", cfg.WorkbookPath, err.Error())
		}
		return store
	case "sqlite":
		db, err := database.NewDatabaseConnection(database.NewSQLiteConnector(cfg.SQLitePath), log)
		if err != nil {
			log.Fatalf("Failed to open sqlite database: %s", err.Error())
		}
		return db
	default:
		db, err := database.NewDatabaseConnection(database.NewPostgreSQLConnector(cfg.Database.DSN(), cfg.Database.Host, log), log)
		if err != nil {
			log.Fatalf("Failed to connect to database: %s", err.Error())
		}
		return db
	}
}

func createResolver(ctx context.Context, cfg *config.Config, log logging.Logger) *permissions.Resolver {
	tokens, err := directory.NewTokenSource(ctx, cfg.Directory.CredentialsFile, cfg.Directory.Subject, cfg.Directory.Token)
	if err != nil {
		log.Fatalf("Failed to create directory credentials: %s", err.Error())
	}
	dir := directory.NewClient(cfg.Directory.BaseURL, tokens, cfg.Directory.Timeout, log)

	var cache permissions.Cache = permissions.NewMemoryCache()
	if cfg.Redis.Addr != "" {
		ttl := cfg.Permissions.TTL
		if cfg.Permissions.ErrorTTL > ttl {
			ttl = cfg.Permissions.ErrorTTL
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = permissions.NewRedisCache(client, ttl, log)
		log.Infof("Caching permissions in redis at %s", cfg.Redis.Addr)
	}

	groups := make([]permissions.BuildingGroup, 0, len(cfg.Permissions.BuildingGroups))
	for _, bg := range cfg.Permissions.BuildingGroups {
		groups = append(groups, permissions.BuildingGroup{Building: bg.Building, Group: bg.Group})
	}

	return permissions.NewResolver(dir, cache, permissions.Options{
		AdminGroup:     cfg.Permissions.AdminGroup,
		BuildingGroups: groups,
		TTL:            cfg.Permissions.TTL,
		ErrorTTL:       cfg.Permissions.ErrorTTL,
		Timeout:        cfg.Directory.Timeout,
	}, log)
}
