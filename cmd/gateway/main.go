package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"brokergate/internal/config"
	"brokergate/internal/locker"
	"brokergate/internal/logger"
	"brokergate/internal/news"
	"brokergate/internal/postgres"
	"brokergate/internal/server"
	"brokergate/internal/store"
	"brokergate/internal/tools"
)

const _cfgFilePath = "./configs/config.yaml"

func main() {
	cfgPath := flag.String("config", _cfgFilePath, "path to the yaml config")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("can't detect .env file")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("%s: can't load cfg", err)
	}

	zapLogger, loggerSync, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("%s: can't init logger", err)
	}
	defer loggerSync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := postgres.NewDB(postgres.NewConfigFromEnv().Setup())
	if err != nil {
		zapLogger.Fatalf("%s: can't connect to postgres", err)
	}
	defer db.Close()

	conns := store.NewConnectionsRepo(db)
	if err := conns.Migrate(ctx); err != nil {
		zapLogger.Fatalf("%s: can't migrate connections store", err)
	}

	eventsStore := news.NewStore(db)
	if err := eventsStore.Migrate(ctx); err != nil {
		zapLogger.Fatalf("%s: can't migrate events store", err)
	}

	client := locker.NewClient(cfg.Gateway, zapLogger)
	defer client.Close()

	tokens := locker.NewTokenManager(client, conns, cfg.Gateway.TokenSafetyMargin, zapLogger)
	resolver, err := locker.NewResolver(client, tokens, cfg.Gateway.AccountCacheTTL, zapLogger)
	if err != nil {
		zapLogger.Fatalf("%s: can't init account resolver", err)
	}
	gateway := locker.NewGateway(client, tokens, resolver, cfg.Gateway, zapLogger)

	newsClient := news.NewClient(cfg.News, zapLogger)
	defer newsClient.Close()

	updater := news.NewUpdater(newsClient, eventsStore, cfg.News, zapLogger)
	updater.Start(ctx)
	defer updater.Stop()

	registry := tools.NewRegistry()
	registry.RegisterAll(tools.BuiltinTools(tools.Deps{
		Conns:   conns,
		Gateway: gateway,
		Events:  eventsStore,
		Updater: updater,
		Logger:  zapLogger,
	})...)

	handler := server.NewHandler(conns, gateway, tokens, eventsStore, updater, registry, zapLogger)
	router := server.NewRouter(handler, cfg.Server.APIKey, zapLogger)

	httpServer := server.NewHTTPServer(ctx, cfg.Server.Port, router)
	zapLogger.Infof("listening on :%s", cfg.Server.Port)
	if err := httpServer.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zapLogger.Errorf("%s: http server stopped", err)
	}
}
