package config

import "os"

type WorkerConfig struct {
	// ServerAddr is the coordinator's host:port.
	ServerAddr string
	// Secret is presented in the PASSWD handshake reply.
	Secret string
}

func NewWorkerConfig() *WorkerConfig {
	addr := os.Getenv("SERVER_ADDR")
	if addr == "" {
		addr = "localhost:1337"
	}
	return &WorkerConfig{
		ServerAddr: addr,
		Secret:     os.Getenv("PASSWORD"),
	}
}
