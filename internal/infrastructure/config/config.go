package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported source database drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// DefaultSchema qualifies source tables unless database.schema is set.
const DefaultSchema = "SAPHANADB"

// Config holds all job configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Log       LogConfig
	Audit     AuditConfig
	Enrich    EnrichConfig
	Report    ReportConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name    string
	Env     string
	Version string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, console
	Output   string // stdout, stderr, or file path
	SQLLevel string // silent, error, warn, info
}

// DatabaseConfig holds source database connection settings
type DatabaseConfig struct {
	Driver          string // postgres, mysql, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string // database name, or file path for sqlite
	SSLMode         string
	Schema          string // schema qualifying every source table; empty for none
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// AuditConfig holds the audit list and stock resolution settings
type AuditConfig struct {
	Chassis          []string
	ListFile         string
	Plant            string
	StorageLocation  string
	MaterialPrefix   string
	GoodsIssueCode   string
	ReversalCode     string
	GoodsReceiptCode string
	QueryTimeout     time.Duration
}

// ScopeConfig is one organizational scope of the detail columns
type ScopeConfig struct {
	Name     string `mapstructure:"name"`
	SalesOrg string `mapstructure:"sales_org"`
}

// EnrichConfig holds detail enrichment settings
type EnrichConfig struct {
	Scopes             []ScopeConfig
	Facts              []string
	BillToRole         string
	MaxParallelQueries int
}

// ReportConfig holds artifact settings
type ReportConfig struct {
	Output            string
	IncludeStatistics bool
}

// StorageConfig holds S3-compatible object storage settings for artifact upload
type StorageConfig struct {
	Enabled       bool
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	UsePathStyle  bool
	Prefix        string
	CreateBucket  bool // create a missing bucket before the first upload
	PresignExpiry time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Export traces
	MetricsEnabled    bool    // Export run metrics
	LogsEnabled       bool    // Bridge zap logs to the collector
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // 0.0-1.0
	ServiceName       string
	Insecure          bool
	DBTraceEnabled    bool          // Trace source queries (otelgorm)
	DBLogFullSQL      bool          // Include bound values in query spans
	DBSlowQueryThresh time.Duration // Slow query threshold for logs and spans
}

// Load loads configuration from a TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with AUDIT_ prefix (e.g., AUDIT_DATABASE_PASSWORD)
// 2. .env file in the working directory
// 3. config.toml (configFile, or searched in . and /etc/stockaudit)
// 4. Built-in defaults
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/stockaudit")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("AUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	scopes, err := loadScopes(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name:    v.GetString("app.name"),
			Env:     v.GetString("app.env"),
			Version: v.GetString("app.version"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			Schema:          v.GetString("database.schema"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Log: LogConfig{
			Level:    v.GetString("log.level"),
			Format:   v.GetString("log.format"),
			Output:   v.GetString("log.output"),
			SQLLevel: v.GetString("log.sql_level"),
		},
		Audit: AuditConfig{
			Chassis:          splitList(v.GetStringSlice("audit.chassis")),
			ListFile:         v.GetString("audit.list_file"),
			Plant:            v.GetString("audit.plant"),
			StorageLocation:  v.GetString("audit.storage_location"),
			MaterialPrefix:   v.GetString("audit.material_prefix"),
			GoodsIssueCode:   v.GetString("audit.goods_issue_code"),
			ReversalCode:     v.GetString("audit.reversal_code"),
			GoodsReceiptCode: v.GetString("audit.goods_receipt_code"),
			QueryTimeout:     v.GetDuration("audit.query_timeout"),
		},
		Enrich: EnrichConfig{
			Scopes:             scopes,
			Facts:              splitList(v.GetStringSlice("enrich.facts")),
			BillToRole:         v.GetString("enrich.bill_to_role"),
			MaxParallelQueries: v.GetInt("enrich.max_parallel_queries"),
		},
		Report: ReportConfig{
			Output:            v.GetString("report.output"),
			IncludeStatistics: v.GetBool("report.include_statistics"),
		},
		Storage: StorageConfig{
			Enabled:       v.GetBool("storage.enabled"),
			Endpoint:      v.GetString("storage.endpoint"),
			Region:        v.GetString("storage.region"),
			Bucket:        v.GetString("storage.bucket"),
			AccessKey:     v.GetString("storage.access_key"),
			SecretKey:     v.GetString("storage.secret_key"),
			UseSSL:        v.GetBool("storage.use_ssl"),
			UsePathStyle:  v.GetBool("storage.use_path_style"),
			Prefix:        v.GetString("storage.prefix"),
			CreateBucket:  v.GetBool("storage.create_bucket"),
			PresignExpiry: v.GetDuration("storage.presign_expiry"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}
	if !v.IsSet("report.include_statistics") {
		cfg.Report.IncludeStatistics = true
	}
	if !v.IsSet("telemetry.sampling_ratio") {
		cfg.Telemetry.SamplingRatio = 1.0
	}

	applyDefaults(cfg)
	// sqlite snapshots keep tables unqualified
	if !v.IsSet("database.schema") && cfg.Database.Driver != DriverSQLite {
		cfg.Database.Schema = DefaultSchema
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadScopes reads enrich.scopes either as a TOML array of tables or, from
// the environment, as "name=sales_org" pairs separated by commas.
func loadScopes(v *viper.Viper) ([]ScopeConfig, error) {
	if raw, ok := v.Get("enrich.scopes").(string); ok {
		return ParseScopes(raw)
	}
	var scopes []ScopeConfig
	if err := v.UnmarshalKey("enrich.scopes", &scopes); err != nil {
		return nil, fmt.Errorf("invalid enrich.scopes: %w", err)
	}
	return scopes, nil
}

// splitList flattens comma separated entries, as produced by env vars.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// ParseScopes parses "3120=3120,3110=3110". A bare entry uses its name as
// the sales organisation.
func ParseScopes(raw string) ([]ScopeConfig, error) {
	var scopes []ScopeConfig
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, org, found := strings.Cut(part, "=")
		if !found {
			org = name
		}
		name, org = strings.TrimSpace(name), strings.TrimSpace(org)
		if name == "" || org == "" {
			return nil, fmt.Errorf("invalid enrich.scopes entry %q", part)
		}
		scopes = append(scopes, ScopeConfig{Name: name, SalesOrg: org})
	}
	return scopes, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "stockaudit"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		switch cfg.Database.Driver {
		case DriverMySQL:
			cfg.Database.Port = 3306
		default:
			cfg.Database.Port = 5432
		}
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "audit"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "sap"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 4
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 5
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.Log.SQLLevel == "" {
		cfg.Log.SQLLevel = "warn"
	}
	if cfg.Audit.Plant == "" {
		cfg.Audit.Plant = "3211"
	}
	if cfg.Audit.StorageLocation == "" {
		cfg.Audit.StorageLocation = "0002"
	}
	if cfg.Audit.MaterialPrefix == "" {
		cfg.Audit.MaterialPrefix = "Z12"
	}
	if cfg.Audit.GoodsIssueCode == "" {
		cfg.Audit.GoodsIssueCode = "601"
	}
	if cfg.Audit.ReversalCode == "" {
		cfg.Audit.ReversalCode = "602"
	}
	if cfg.Audit.GoodsReceiptCode == "" {
		cfg.Audit.GoodsReceiptCode = "101"
	}
	if cfg.Audit.QueryTimeout == 0 {
		cfg.Audit.QueryTimeout = 5 * time.Minute
	}
	if len(cfg.Enrich.Scopes) == 0 {
		cfg.Enrich.Scopes = []ScopeConfig{
			{Name: "3120", SalesOrg: "3120"},
			{Name: "3110", SalesOrg: "3110"},
		}
	}
	if cfg.Enrich.BillToRole == "" {
		cfg.Enrich.BillToRole = "RE"
	}
	if cfg.Enrich.MaxParallelQueries == 0 {
		cfg.Enrich.MaxParallelQueries = 1
	}
	if cfg.Report.Output == "" {
		cfg.Report.Output = "StJames_Audit_Final.xlsx"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "stock-audit"
	}
	if cfg.Storage.PresignExpiry == 0 {
		cfg.Storage.PresignExpiry = 24 * time.Hour
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 5 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be one of postgres, mysql, sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Audit.QueryTimeout < 0 {
		return fmt.Errorf("audit.query_timeout cannot be negative")
	}
	if c.Audit.GoodsIssueCode == c.Audit.ReversalCode {
		return fmt.Errorf("audit.goods_issue_code and audit.reversal_code must differ")
	}

	seen := make(map[string]bool)
	for _, s := range c.Enrich.Scopes {
		if s.Name == "" || s.SalesOrg == "" {
			return fmt.Errorf("enrich.scopes entries need both name and sales_org")
		}
		if seen[s.Name] {
			return fmt.Errorf("enrich.scopes has duplicate name %q", s.Name)
		}
		seen[s.Name] = true
	}
	if c.Enrich.MaxParallelQueries < 1 {
		return fmt.Errorf("enrich.max_parallel_queries must be at least 1")
	}
	// Parallel fact queries each hold a connection
	if c.Enrich.MaxParallelQueries > c.Database.MaxOpenConns {
		return fmt.Errorf("enrich.max_parallel_queries (%d) cannot exceed database.max_open_conns (%d)",
			c.Enrich.MaxParallelQueries, c.Database.MaxOpenConns)
	}

	if c.Storage.PresignExpiry < 0 {
		return fmt.Errorf("storage.presign_expiry cannot be negative")
	}
	if c.Storage.Enabled {
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required when storage is enabled")
		}
		if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
			return fmt.Errorf("storage.access_key and storage.secret_key are required when storage is enabled")
		}
	}

	if c.App.Env == "production" {
		if c.Database.Driver != DriverSQLite && c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.Driver == DriverPostgres && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to keep chassis and customer numbers out of traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the driver-specific connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = d.User
		mc.Passwd = d.Password
		mc.Net = "tcp"
		mc.Addr = fmt.Sprintf("%s:%d", d.Host, d.Port)
		mc.DBName = d.DBName
		mc.ParseTime = false
		return mc.FormatDSN()
	case DriverSQLite:
		return d.DBName
	default:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(d.User, d.Password),
			Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
			Path:   d.DBName,
		}
		q := u.Query()
		q.Set("sslmode", d.SSLMode)
		u.RawQuery = q.Encode()
		return u.String()
	}
}
