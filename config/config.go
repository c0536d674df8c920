package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

type BaseEnv struct {
	Debug bool `envconfig:"DEBUG" default:"false"`
}

type StorageEnv struct {
	ConnectionString string `envconfig:"STORAGE_CONNECTION_STRING" required:"true"`
	TasksTable       string `envconfig:"TASKS_TABLE" default:"Tasks"`
	ProjectsTable    string `envconfig:"PROJECTS_TABLE" default:"Projects"`
	UsersTable       string `envconfig:"USERS_TABLE" default:"Users"`
}

type RedisEnv struct {
	RedisConnectionString string `envconfig:"REDIS_CONNECTION_STRING"`
}

type APIEnv struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	Auth0Domain     string        `envconfig:"AUTH0_DOMAIN"`
	Auth0Audience   string        `envconfig:"AUTH0_AUDIENCE"`
	Auth0TestMode   bool          `envconfig:"AUTH0_TEST_MODE" default:"false"`
	TestJWTSecret   string        `envconfig:"TEST_JWT_SECRET"`
	ProjectCacheTTL time.Duration `envconfig:"PROJECT_CACHE_TTL" default:"30s"`
}

type ReconcilerEnv struct {
	Interval    time.Duration `envconfig:"RECONCILE_INTERVAL" default:"10s"`
	CallTimeout time.Duration `envconfig:"RECONCILE_CALL_TIMEOUT" default:"15s"`
	Workers     int           `envconfig:"RECONCILE_WORKERS" default:"4"`
	LeaseTTL    time.Duration `envconfig:"RECONCILE_LEASE_TTL" default:"2m"`
	LeaseKey    string        `envconfig:"RECONCILE_LEASE_KEY" default:"reconciler:lease"`
	GitHubAPI   string        `envconfig:"GITHUB_API_URL"`
}

// API is the configuration of the task-api service.
type API struct {
	BaseEnv
	StorageEnv
	RedisEnv
	APIEnv
}

// Reconciler is the configuration of the pr-reconciler service.
type Reconciler struct {
	BaseEnv
	StorageEnv
	RedisEnv
	ReconcilerEnv
}

// StorageInit is the configuration of the storage-init job.
type StorageInit struct {
	BaseEnv
	StorageEnv
}

func LoadAPI() (*API, error) {
	var env API
	if err := process(&env); err != nil {
		return nil, err
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func LoadReconciler() (*Reconciler, error) {
	var env Reconciler
	if err := process(&env); err != nil {
		return nil, err
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func LoadStorageInit() (*StorageInit, error) {
	var env StorageInit
	if err := process(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

func process(v any) error {
	if err := envconfig.Process("", v); err != nil {
		return fmt.Errorf("failed to load env: %w", err)
	}
	return nil
}

func (a *API) validate() error {
	if a.Auth0TestMode {
		if a.TestJWTSecret == "" {
			return errors.New("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE is enabled")
		}
		return nil
	}
	if a.Auth0Domain == "" || a.Auth0Audience == "" {
		return errors.New("missing Auth0 config")
	}
	return nil
}

func (r *Reconciler) validate() error {
	if r.Interval <= 0 || r.CallTimeout <= 0 {
		return errors.New("RECONCILE_INTERVAL and RECONCILE_CALL_TIMEOUT must be positive")
	}
	if r.Workers <= 0 {
		return errors.New("RECONCILE_WORKERS must be greater than zero")
	}
	if r.RedisConnectionString != "" && r.LeaseTTL <= 0 {
		return errors.New("RECONCILE_LEASE_TTL must be positive")
	}
	return nil
}

// LogLevel maps DEBUG onto a logrus level.
func (e BaseEnv) LogLevel() log.Level {
	if e.Debug {
		return log.DebugLevel
	}
	return log.InfoLevel
}

// Options parses the connection string. It returns nil when Redis is not
// configured.
func (e RedisEnv) Options() (*redis.Options, error) {
	if e.RedisConnectionString == "" {
		return nil, nil
	}
	return ParseRedis(e.RedisConnectionString)
}

// ParseRedis accepts either a redis:// URL or the Azure Cache form
// "host:port,password=...,ssl=true".
func ParseRedis(conn string) (*redis.Options, error) {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	if strings.TrimSpace(parts[0]) == "" || strings.Contains(parts[0], "=") {
		return nil, errors.New("invalid redis connection string")
	}
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}
