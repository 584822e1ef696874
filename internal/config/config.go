package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// AI side choices for AI_SIDE.
const (
	AISideFirst  = "first"
	AISideSecond = "second"
	AISideRandom = "random"
)

// AI engine choices for AI_ENGINE.
const (
	AIEngineHeuristic = "heuristic"
	AIEngineRandom    = "random"
)

type ConfigStruct struct {
	TCPHost string
	TCPPort int

	WSEnabled bool
	WSHost    string
	WSPort    int

	QueueInterval time.Duration
	IdleTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxMalformed  int

	AISide      string
	AIEngine    string
	AIName      string
	AIMoveDelay time.Duration
	AIPhrases   []string

	ChatRetries      int
	ChatRetryBackoff time.Duration

	MySQLHost     string
	MySQLPort     int
	MySQLUser     string
	MySQLPassword string
	MySQLDatabase string

	MongoURI string
	MongoDB  string

	RecorderBuffer int

	LogLevel       string
	LogDevelopment bool
}

var DefaultAIPhrases = []string{
	"Well played!",
	"Thinking about my next move...",
	"You're good at this!",
	"I'll win this time!",
	"Interesting strategy...",
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *ConfigStruct {
	return &ConfigStruct{
		TCPHost:          "0.0.0.0",
		TCPPort:          5000,
		WSEnabled:        true,
		WSHost:           "0.0.0.0",
		WSPort:           8080,
		QueueInterval:    time.Second,
		IdleTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		MaxMalformed:     5,
		AISide:           AISideRandom,
		AIEngine:         AIEngineHeuristic,
		AIName:           "AI",
		AIMoveDelay:      time.Second,
		AIPhrases:        append([]string(nil), DefaultAIPhrases...),
		ChatRetries:      3,
		ChatRetryBackoff: 100 * time.Millisecond,
		MySQLPort:        3306,
		RecorderBuffer:   256,
		LogLevel:         "info",
	}
}

// Load builds the configuration from defaults, a .env file in the working
// directory, an optional YAML file and the process environment, in that
// order of increasing precedence. YAML keys are the lowercase environment
// variable names.
func Load(path string) (*ConfigStruct, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}

	src := source{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &src.file); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg := Defaults()
	src.str("TCP_HOST", &cfg.TCPHost)
	src.int("TCP_PORT", &cfg.TCPPort)
	src.bool("WS_ENABLED", &cfg.WSEnabled)
	src.str("WS_HOST", &cfg.WSHost)
	src.int("WS_PORT", &cfg.WSPort)
	src.duration("QUEUE_INTERVAL", &cfg.QueueInterval)
	src.duration("IDLE_TIMEOUT", &cfg.IdleTimeout)
	src.duration("WRITE_TIMEOUT", &cfg.WriteTimeout)
	src.int("MAX_MALFORMED", &cfg.MaxMalformed)
	src.str("AI_SIDE", &cfg.AISide)
	src.str("AI_ENGINE", &cfg.AIEngine)
	src.str("AI_NAME", &cfg.AIName)
	src.duration("AI_MOVE_DELAY", &cfg.AIMoveDelay)
	src.list("AI_PHRASES", &cfg.AIPhrases)
	src.int("CHAT_RETRIES", &cfg.ChatRetries)
	src.duration("CHAT_RETRY_BACKOFF", &cfg.ChatRetryBackoff)
	src.str("MYSQL_HOST", &cfg.MySQLHost)
	src.int("MYSQL_PORT", &cfg.MySQLPort)
	src.str("MYSQL_USER", &cfg.MySQLUser)
	src.str("MYSQL_PASSWORD", &cfg.MySQLPassword)
	src.str("MYSQL_DATABASE", &cfg.MySQLDatabase)
	src.str("MONGO_URI", &cfg.MongoURI)
	src.str("MONGO_DB", &cfg.MongoDB)
	src.int("RECORDER_BUFFER", &cfg.RecorderBuffer)
	src.str("LOG_LEVEL", &cfg.LogLevel)
	src.bool("LOG_DEVELOPMENT", &cfg.LogDevelopment)

	if len(src.errs) > 0 {
		return nil, errors.Join(src.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c *ConfigStruct) Validate() error {
	var errs []error
	if c.TCPPort <= 0 || c.TCPPort > 65535 {
		errs = append(errs, fmt.Errorf("TCP_PORT %d out of range", c.TCPPort))
	}
	if c.WSEnabled && (c.WSPort <= 0 || c.WSPort > 65535) {
		errs = append(errs, fmt.Errorf("WS_PORT %d out of range", c.WSPort))
	}
	if c.QueueInterval <= 0 {
		errs = append(errs, errors.New("QUEUE_INTERVAL must be positive"))
	}
	if c.IdleTimeout < 0 || c.WriteTimeout < 0 || c.AIMoveDelay < 0 || c.ChatRetryBackoff < 0 {
		errs = append(errs, errors.New("timeouts and delays must not be negative"))
	}
	if c.MaxMalformed < 1 {
		errs = append(errs, errors.New("MAX_MALFORMED must be at least 1"))
	}
	if c.ChatRetries < 1 {
		errs = append(errs, errors.New("CHAT_RETRIES must be at least 1"))
	}
	switch c.AISide {
	case AISideFirst, AISideSecond, AISideRandom:
	default:
		errs = append(errs, fmt.Errorf("AI_SIDE %q is not one of first, second, random", c.AISide))
	}
	switch c.AIEngine {
	case AIEngineHeuristic, AIEngineRandom:
	default:
		errs = append(errs, fmt.Errorf("AI_ENGINE %q is not one of heuristic, random", c.AIEngine))
	}
	if strings.TrimSpace(c.AIName) == "" {
		errs = append(errs, errors.New("AI_NAME must not be empty"))
	}
	if len(c.AIPhrases) == 0 {
		errs = append(errs, errors.New("AI_PHRASES must not be empty"))
	}
	if c.RecorderBuffer < 1 {
		errs = append(errs, errors.New("RECORDER_BUFFER must be at least 1"))
	}
	if c.MongoURI != "" && c.MongoDB == "" {
		errs = append(errs, errors.New("MONGO_DB is required when MONGO_URI is set"))
	}
	return errors.Join(errs...)
}

func (c *ConfigStruct) TCPAddr() string { return fmt.Sprintf("%s:%d", c.TCPHost, c.TCPPort) }
func (c *ConfigStruct) WSAddr() string  { return fmt.Sprintf("%s:%d", c.WSHost, c.WSPort) }

// MySQLEnabled reports whether the MySQL mirror should be opened.
func (c *ConfigStruct) MySQLEnabled() bool {
	return c.MySQLHost != "" && c.MySQLDatabase != ""
}

// MongoEnabled reports whether finished matches are archived to MongoDB.
func (c *ConfigStruct) MongoEnabled() bool {
	return c.MongoURI != ""
}

// source resolves one setting from the environment first, then the YAML
// file. Parse failures are collected rather than replaced with defaults.
type source struct {
	file map[string]interface{}
	errs []error
}

func (s *source) lookup(env string) (interface{}, bool) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		return v, true
	}
	v, ok := s.file[strings.ToLower(env)]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (s *source) text(env string) (string, bool) {
	v, ok := s.lookup(env)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(fmt.Sprint(v)), true
}

func (s *source) str(env string, dst *string) {
	if v, ok := s.text(env); ok {
		*dst = v
	}
}

func (s *source) int(env string, dst *int) {
	v, ok := s.text(env)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("invalid value for %s: %w", env, err))
		return
	}
	*dst = n
}

func (s *source) bool(env string, dst *bool) {
	v, ok := s.text(env)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("invalid value for %s: %w", env, err))
		return
	}
	*dst = b
}

func (s *source) duration(env string, dst *time.Duration) {
	v, ok := s.text(env)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("invalid value for %s: %w", env, err))
		return
	}
	*dst = d
}

// list accepts a YAML sequence or a string split on "|".
func (s *source) list(env string, dst *[]string) {
	v, ok := s.lookup(env)
	if !ok {
		return
	}
	var out []string
	switch items := v.(type) {
	case []interface{}:
		for _, item := range items {
			out = append(out, fmt.Sprint(item))
		}
	default:
		for _, part := range strings.Split(fmt.Sprint(items), "|") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	*dst = out
}
