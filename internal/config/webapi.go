package config

import (
	"os"
	"strconv"
	"time"
)

type WebAPIConfig struct {
	// BaseURL of the work generation/validation API.
	BaseURL string
	// APIKey is sent as a bearer token on every request.
	APIKey  string
	Timeout time.Duration
}

func NewWebAPIConfig() *WebAPIConfig {
	baseURL := os.Getenv("API_URL")
	if baseURL == "" {
		baseURL = "https://projet-raizo-idmc.netlify.app/.netlify/functions"
	}
	timeoutSec, err := strconv.Atoi(os.Getenv("API_TIMEOUT_SEC"))
	if err != nil {
		timeoutSec = 30
	}
	return &WebAPIConfig{
		BaseURL: baseURL,
		APIKey:  os.Getenv("API_KEY"),
		Timeout: time.Duration(timeoutSec) * time.Second,
	}
}
