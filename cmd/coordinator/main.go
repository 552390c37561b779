package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gitlab.com/hashfleet.net/internal/config"
	"gitlab.com/hashfleet.net/internal/coordinator"
	"gitlab.com/hashfleet.net/internal/coordinator/registry"
	logger2 "gitlab.com/hashfleet.net/internal/global/logger"
	"gitlab.com/hashfleet.net/internal/httpapi"
	"gitlab.com/hashfleet.net/internal/webapi"
)

func main() {
	InitReader()

	logger := logger2.Logger
	logger2.Info("Starting mining coordinator")

	sysCfg := config.NewSystemConfig()
	if sysCfg.CoordinatorConfig.Secret == "" {
		log.Fatalf("PASSWORD not set")
	}

	reg := registry.NewRegistry(logger)
	tasks := webapi.NewClient(sysCfg.WebAPIConfig, logger)
	distributor := coordinator.NewDistributor(reg, tasks, logger)
	results := coordinator.NewResultCoordinator(reg, tasks, distributor, logger)

	listener := coordinator.NewListener(
		sysCfg.CoordinatorConfig.Secret,
		reg,
		results,
		logger,
		coordinator.WithAddress(fmt.Sprintf(":%d", sysCfg.CoordinatorConfig.Port)),
	)
	if err := listener.Start(); err != nil {
		panic(err)
	}

	ctxBg := context.Background()
	statusAPI := httpapi.NewServer(sysCfg.CoordinatorConfig.HTTPPort, reg, distributor, logger)
	statusAPI.Start(ctxBg)

	// The console owns the foreground; a signal ends the process the same
	// way quit does.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	consoleDone := make(chan struct{})
	console := coordinator.NewConsole(reg, distributor, logger, os.Stdin, os.Stdout)
	go func() {
		console.Run(ctxBg)
		close(consoleDone)
	}()

	select {
	case <-quit:
	case <-consoleDone:
	}

	logger.Info("Shutting down coordinator...")

	ctx, cancel := context.WithTimeout(ctxBg, 5*time.Second)
	defer cancel()
	listener.Stop()
	statusAPI.Stop(ctx)

	logger.Info("successfully shutdown coordinator")
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
