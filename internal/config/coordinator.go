package config

import (
	"os"
	"strconv"
)

type CoordinatorConfig struct {
	// Port is the TCP port workers dial into.
	Port int
	// HTTPPort serves the read-only status API.
	HTTPPort int
	// Secret is the shared secret workers must present during the
	// handshake. Supplied out of band, never sent by the coordinator.
	Secret string
}

func NewCoordinatorConfig() *CoordinatorConfig {
	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 1337
	}
	httpPort, err := strconv.Atoi(os.Getenv("HTTP_PORT"))
	if err != nil {
		httpPort = 8082
	}
	return &CoordinatorConfig{
		Port:     port,
		HTTPPort: httpPort,
		Secret:   os.Getenv("PASSWORD"),
	}
}
