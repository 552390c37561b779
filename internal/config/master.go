package config

import "os"

type AppConfig struct {
	DebugMode         bool
	CoordinatorConfig *CoordinatorConfig
	WorkerConfig      *WorkerConfig
	WebAPIConfig      *WebAPIConfig
}

func NewSystemConfig() *AppConfig {
	return &AppConfig{
		DebugMode:         os.Getenv("DEBUG_MODE") == "true",
		CoordinatorConfig: NewCoordinatorConfig(),
		WorkerConfig:      NewWorkerConfig(),
		WebAPIConfig:      NewWebAPIConfig(),
	}
}
