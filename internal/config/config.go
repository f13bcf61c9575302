// Package config loads tunables from the environment, with an optional .env
// file for development. Every value has the platform default; nothing is
// required.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable of the client core and the dev relay.
type Config struct {
	// Proximity radii, floor units.
	CombatRadius    float64
	ChatJoinRadius  float64
	ChatLeaveRadius float64

	// Cadence.
	BroadcastHz   int // local position re-broadcast rate
	ProximityHz   int // proximity evaluation rate
	LeaveDebounce time.Duration

	// Transport.
	SubscribeTimeout time.Duration
	RelayURL         string

	// Relay binary.
	RelayAddr string
	LogFile   string
}

func Default() Config {
	return Config{
		CombatRadius:     100,
		ChatJoinRadius:   150,
		ChatLeaveRadius:  200,
		BroadcastHz:      12,
		ProximityHz:      10,
		LeaveDebounce:    2 * time.Second,
		SubscribeTimeout: 10 * time.Second,
		RelayURL:         "ws://localhost:8080/ws",
		RelayAddr:        ":8080",
		LogFile:          "floorlink.log",
	}
}

// Load reads .env (if present) and the FLOORLINK_* environment variables on
// top of the defaults.
func Load() (Config, error) {
	_ = godotenv.Load() // missing .env is fine

	cfg := Default()
	var err error

	if cfg.CombatRadius, err = envFloat("FLOORLINK_COMBAT_RADIUS", cfg.CombatRadius); err != nil {
		return cfg, err
	}
	if cfg.ChatJoinRadius, err = envFloat("FLOORLINK_CHAT_JOIN_RADIUS", cfg.ChatJoinRadius); err != nil {
		return cfg, err
	}
	if cfg.ChatLeaveRadius, err = envFloat("FLOORLINK_CHAT_LEAVE_RADIUS", cfg.ChatLeaveRadius); err != nil {
		return cfg, err
	}
	if cfg.BroadcastHz, err = envInt("FLOORLINK_BROADCAST_HZ", cfg.BroadcastHz); err != nil {
		return cfg, err
	}
	if cfg.ProximityHz, err = envInt("FLOORLINK_PROXIMITY_HZ", cfg.ProximityHz); err != nil {
		return cfg, err
	}
	if cfg.LeaveDebounce, err = envDuration("FLOORLINK_LEAVE_DEBOUNCE", cfg.LeaveDebounce); err != nil {
		return cfg, err
	}
	if cfg.SubscribeTimeout, err = envDuration("FLOORLINK_SUBSCRIBE_TIMEOUT", cfg.SubscribeTimeout); err != nil {
		return cfg, err
	}
	if v := os.Getenv("FLOORLINK_RELAY_URL"); v != "" {
		cfg.RelayURL = v
	}
	if v := os.Getenv("FLOORLINK_RELAY_ADDR"); v != "" {
		cfg.RelayAddr = v
	}
	if v := os.Getenv("FLOORLINK_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}

	if cfg.ChatLeaveRadius < cfg.ChatJoinRadius {
		return cfg, fmt.Errorf("config: chat leave radius %v smaller than join radius %v",
			cfg.ChatLeaveRadius, cfg.ChatJoinRadius)
	}
	return cfg, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	return f, nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	return d, nil
}
