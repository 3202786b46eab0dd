package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App        AppConfig
	Paths      PathsConfig
	Database   DatabaseConfig
	Security   SecurityConfig
	CloudAPI   CloudAPIConfig
	Instances  InstancesConfig
	Sync       SyncConfig
	Monitor    MonitorConfig
	Reconcile  ReconcileConfig
	Credential CredentialConfig
	Notifier   NotifierConfig
	WorkerPool WorkerPoolConfig
}

// NotifierConfig points at the tenant backend endpoints that receive
// gateway-originated events (restart notices, sync batches, alerts).
type NotifierConfig struct {
	URLs    []string
	Timeout time.Duration
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	BasicAuth          []string
	BasePath           string
	TrustedProxies     []string
	BaseUrl            string
	CorsAllowedOrigins []string
	ServerID           string
}

type PathsConfig struct {
	BaseDir  string
	Storages string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB Name for Postgres
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

type SecurityConfig struct {
	SecretKey       string // credential blob encryption at rest
	HMACSecret      string // worker<->backend request signing
	HMACTolerance   time.Duration
	WorkerAPIToken  string
}

type CloudAPIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// InstancesConfig describes the fleet of browser-automation worker instances.
type InstancesConfig struct {
	URLs          []string
	HealthTimeout time.Duration
	SendTimeout   time.Duration
}

type SyncConfig struct {
	BatchSize     int
	Concurrency   int
	WindowDays    int // 0 = no window, sync everything
	MaxChats      int
	RetryAttempts int
	RetryBase     time.Duration
}

type MonitorConfig struct {
	Interval            time.Duration
	InactivityThreshold time.Duration
	MaxRestartAttempts  int
	Cooldown            time.Duration
	SettleDelay         time.Duration
}

type ReconcileConfig struct {
	Interval time.Duration
}

type CredentialConfig struct {
	TTL            time.Duration
	BackupInterval time.Duration
	BackupDir      string
}

type WorkerPoolConfig struct {
	Size      int
	QueueSize int
}

// Global provides access to the loaded configuration globally.
var Global *Config

// LoadConfig loads configuration from environment variables or defaults.
func LoadConfig() (*Config, error) {
	baseDir := getEnv("APP_BASE_DIR", "storages")

	debug := getEnvBool("APP_DEBUG", false)

	var basicAuth []string
	if v := getEnv("APP_BASIC_AUTH", ""); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	corsOrigins := []string{"http://localhost:3000"}
	if v := getEnv("APP_CORS_ALLOWED_ORIGINS", ""); v != "" {
		corsOrigins = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:            "v1.4.0",
		Port:               getEnv("APP_PORT", "3000"),
		Debug:              debug,
		Environment:        getEnv("APP_ENV", "development"),
		BasicAuth:          basicAuth,
		BasePath:           getEnv("APP_BASE_PATH", ""),
		BaseUrl:            getEnv("APP_BASE_URL", "http://localhost:3000"),
		CorsAllowedOrigins: corsOrigins,
		ServerID:           getEnv("SERVER_ID", ""),
	}
	if v := getEnv("APP_TRUSTED_PROXIES", ""); v != "" {
		appCfg.TrustedProxies = strings.Split(v, ",")
	}

	pathsCfg := PathsConfig{
		BaseDir:  baseDir,
		Storages: baseDir,
	}

	dbCfg := DatabaseConfig{
		Driver:          getEnv("DB_DRIVER", "sqlite"),
		Name:            getEnv("DB_NAME", filepath.Join(pathsCfg.Storages, "gateway.db")),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
		ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:        getEnvInt("VALKEY_DB", 0),
		ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "wagate:"),
	}

	secCfg := SecurityConfig{
		SecretKey:      getEnv("APP_SECRET_KEY", "changeme_please_change_me_in_prod_12345"),
		HMACSecret:     getEnv("HMAC_SHARED_SECRET", ""),
		HMACTolerance:  time.Duration(getEnvInt("HMAC_TOLERANCE_SECONDS", 300)) * time.Second,
		WorkerAPIToken: getEnv("WORKER_API_TOKEN", ""),
	}
	if secCfg.HMACSecret == "" {
		return nil, fmt.Errorf("HMAC_SHARED_SECRET is required; worker traffic cannot be verified without it")
	}

	cloudCfg := CloudAPIConfig{
		BaseURL: getEnv("CLOUD_API_BASE_URL", "https://graph.facebook.com/v19.0"),
		Timeout: time.Duration(getEnvInt("CLOUD_API_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	var instanceURLs []string
	if v := getEnv("WORKER_INSTANCE_URLS", ""); v != "" {
		for _, u := range strings.Split(v, ",") {
			u = strings.TrimRight(strings.TrimSpace(u), "/")
			if u != "" {
				instanceURLs = append(instanceURLs, u)
			}
		}
	}
	instCfg := InstancesConfig{
		URLs:          instanceURLs,
		HealthTimeout: time.Duration(getEnvInt("WORKER_HEALTH_TIMEOUT_SECONDS", 5)) * time.Second,
		SendTimeout:   time.Duration(getEnvInt("WORKER_SEND_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	syncCfg := SyncConfig{
		BatchSize:     getEnvInt("SYNC_BATCH_SIZE", 50),
		Concurrency:   getEnvInt("SYNC_CONCURRENCY", 3),
		WindowDays:    getEnvInt("SYNC_WINDOW_DAYS", 0),
		MaxChats:      getEnvInt("SYNC_MAX_CHATS", 500),
		RetryAttempts: getEnvInt("SYNC_RETRY_ATTEMPTS", 3),
		RetryBase:     time.Duration(getEnvInt("SYNC_RETRY_BASE_MS", 1000)) * time.Millisecond,
	}

	monCfg := MonitorConfig{
		Interval:            time.Duration(getEnvInt("MONITOR_INTERVAL_MINUTES", 5)) * time.Minute,
		InactivityThreshold: time.Duration(getEnvInt("MONITOR_INACTIVITY_MINUTES", 30)) * time.Minute,
		MaxRestartAttempts:  getEnvInt("MONITOR_MAX_RESTARTS", 3),
		Cooldown:            time.Duration(getEnvInt("MONITOR_COOLDOWN_MINUTES", 60)) * time.Minute,
		SettleDelay:         time.Duration(getEnvInt("MONITOR_SETTLE_SECONDS", 5)) * time.Second,
	}

	recCfg := ReconcileConfig{
		Interval: time.Duration(getEnvInt("RECONCILE_INTERVAL_MINUTES", 5)) * time.Minute,
	}

	credCfg := CredentialConfig{
		TTL:            time.Duration(getEnvInt("CREDENTIAL_TTL_HOURS", 168)) * time.Hour,
		BackupInterval: time.Duration(getEnvInt("CREDENTIAL_BACKUP_SECONDS", 60)) * time.Second,
		BackupDir:      getEnv("CREDENTIAL_BACKUP_DIR", filepath.Join(pathsCfg.Storages, "credentials")),
	}

	var notifierURLs []string
	if v := getEnv("BACKEND_WEBHOOK_URLS", ""); v != "" {
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				notifierURLs = append(notifierURLs, u)
			}
		}
	}
	notCfg := NotifierConfig{
		URLs:    notifierURLs,
		Timeout: time.Duration(getEnvInt("BACKEND_WEBHOOK_TIMEOUT_SECONDS", 10)) * time.Second,
	}

	cfg := &Config{
		App:        appCfg,
		Paths:      pathsCfg,
		Database:   dbCfg,
		Security:   secCfg,
		CloudAPI:   cloudCfg,
		Instances:  instCfg,
		Sync:       syncCfg,
		Monitor:    monCfg,
		Reconcile:  recCfg,
		Credential: credCfg,
		Notifier:   notCfg,
		WorkerPool: WorkerPoolConfig{
			Size:      getEnvInt("INGEST_WORKER_POOL_SIZE", 20),
			QueueSize: getEnvInt("INGEST_WORKER_QUEUE_SIZE", 1000),
		},
	}

	Global = cfg
	return cfg, nil
}
