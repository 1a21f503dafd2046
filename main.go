package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/deemkeen/anancus/activitypub"
	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/federation"
	"github.com/deemkeen/anancus/kvcache"
	"github.com/deemkeen/anancus/util"
	"github.com/deemkeen/anancus/web"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not read config")
	}

	db.SetDatabasePath(conf.Conf.DataDir)
	database := db.GetDB()
	if err := database.RunMigrations(); err != nil {
		log.Fatal().Err(err).Msg("Could not run migrations")
	}

	cache, err := kvcache.Open(filepath.Join(conf.Conf.DataDir, "cache"))
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open object cache")
	}
	defer cache.Close()

	remoteTimeout := time.Duration(conf.Conf.RemoteTimeoutSecs) * time.Second
	resolver := federation.NewHTTPResolver(remoteTimeout, log.Logger)
	counts := federation.NewHTTPCountFetcher(resolver, log.Logger)
	fedCtx := federation.NewContext(
		resolver,
		cache,
		counts,
		log.Logger,
		time.Duration(conf.Conf.CacheTTLSecs)*time.Second,
		conf.Conf.FeedPageSize,
	)
	activitypub.Configure(fedCtx)

	if conf.Conf.WithAp {
		activitypub.StartDeliveryWorker(conf)
	}

	go func() {
		if err := web.Router(conf, fedCtx); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down")
}
