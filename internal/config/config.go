package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server string
	Path   string
	Secure bool
	Name   string

	ConnectTimeout time.Duration
	LobbyRetry     time.Duration
	PingInterval   time.Duration

	VoiceEnabled       bool
	STUNURL            string
	NegotiationTimeout time.Duration

	StatusAddr string
	ReplayPath string

	HeatStep  float64
	HeatDecay float64
}

func Default() Config {
	return Config{
		Server:             "localhost:8080",
		Path:               "/game",
		Name:               "Player",
		ConnectTimeout:     10 * time.Second,
		LobbyRetry:         3 * time.Second,
		PingInterval:       2 * time.Second,
		STUNURL:            "stun:stun.l.google.com:19302",
		NegotiationTimeout: 15 * time.Second,
		HeatStep:           20,
		HeatDecay:          12,
	}
}

// Load reads the optional env files (".env" when none are given) and then
// the environment. A missing file is only logged.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env: %w", err)
		}
		log.Printf("config: %v", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, falling back to Default for unset
// variables.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	p := parser{lookup: lookup}

	p.str("ARENA_SERVER", &c.Server)
	p.str("ARENA_PATH", &c.Path)
	p.boolean("ARENA_SECURE", &c.Secure)
	p.str("PLAYER_NAME", &c.Name)
	p.duration("CONNECT_TIMEOUT", &c.ConnectTimeout)
	p.duration("LOBBY_RETRY", &c.LobbyRetry)
	p.duration("PING_INTERVAL", &c.PingInterval)
	p.boolean("VOICE_ENABLED", &c.VoiceEnabled)
	p.str("STUN_URL", &c.STUNURL)
	p.duration("NEGOTIATION_TIMEOUT", &c.NegotiationTimeout)
	p.str("STATUS_ADDR", &c.StatusAddr)
	p.str("REPLAY_PATH", &c.ReplayPath)
	p.float("HEAT_STEP", &c.HeatStep)
	p.float("HEAT_DECAY", &c.HeatDecay)

	if p.err != nil {
		return Config{}, p.err
	}
	if c.Server == "" {
		return Config{}, errors.New("config: ARENA_SERVER is empty")
	}
	if c.HeatStep <= 0 {
		return Config{}, fmt.Errorf("config: HEAT_STEP must be positive, got %v", c.HeatStep)
	}
	if c.HeatDecay < 0 {
		return Config{}, fmt.Errorf("config: HEAT_DECAY must not be negative, got %v", c.HeatDecay)
	}
	return c, nil
}

// URL is the websocket address of the game endpoint.
func (c Config) URL() string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: c.Server, Path: c.Path}
	return u.String()
}

// parser keeps the first error so FromEnv reads straight through.
type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) get(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *parser) boolean(key string, dst *bool) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.err = fmt.Errorf("config: %s: %w", key, err)
		return
	}
	*dst = b
}

func (p *parser) duration(key string, dst *time.Duration) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.err = fmt.Errorf("config: %s: %w", key, err)
		return
	}
	if d <= 0 {
		p.err = fmt.Errorf("config: %s must be positive, got %s", key, v)
		return
	}
	*dst = d
}

func (p *parser) float(key string, dst *float64) {
	v, ok := p.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.err = fmt.Errorf("config: %s: %w", key, err)
		return
	}
	*dst = f
}
