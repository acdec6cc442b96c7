package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// HUB_ADDR is the base HTTP address of a running hub, e.g.
	// http://localhost:8080. Scenarios are skipped when it is unset.
	HubAddr string `envconfig:"HUB_ADDR"`
	RoomID  string `envconfig:"E2E_ROOM_ID" default:"room_one"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
