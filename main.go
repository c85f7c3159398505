package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/burrowhq/burrow/activitypub"
	"github.com/burrowhq/burrow/db"
	"github.com/burrowhq/burrow/util"
	"github.com/burrowhq/burrow/web"
)

func main() {
	conf, err := util.ReadConf(os.Getenv("BURROW_CONFIG"))
	if err != nil {
		log.Fatalln(err)
	}

	logger, err := util.NewLogger(os.Getenv("BURROW_DEBUG") != "")
	if err != nil {
		log.Fatalln(err)
	}
	defer logger.Sync()

	logger.Infof("starting %s on domain %s", util.Name, conf.Conf.Domain)

	store, err := db.Open(util.Name+".db", logger)
	if err != nil {
		logger.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	fed := activitypub.New(store, conf, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fed.StartInboxWorker(ctx)
	fed.StartDeliveryWorker(ctx)
	fed.StartCleanupWorker(ctx)

	server := web.NewServer(store, fed, conf, logger)
	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("server stopped: %v", err)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	logger.Info("shutting down")
	cancel()
}
