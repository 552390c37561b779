package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"gitlab.com/hashfleet.net/internal/config"
	logger2 "gitlab.com/hashfleet.net/internal/global/logger"
	"gitlab.com/hashfleet.net/internal/worker"
)

func main() {
	InitReader()

	logger := logger2.Logger
	logger2.Info("Starting mining worker")

	sysCfg := config.NewSystemConfig()
	if sysCfg.WorkerConfig.Secret == "" {
		log.Fatalf("PASSWORD not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("Shutting down worker...")
		cancel()
	}()

	session := worker.NewSession(sysCfg.WorkerConfig, logger)
	if err := session.Run(ctx); err != nil {
		logger.Error("Worker session ended", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker session closed")
}

func InitReader() {
	environment := ""
	if len(os.Args) < 2 {
		log.Fatalf("Env not supplied in argument")
	} else {
		environment = os.Args[1]
	}

	err := godotenv.Load(environment + ".env")
	if err != nil {
		log.Fatalf("Error loading %s.env file", environment)
	}
}
