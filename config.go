package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config defines the structure of the configuration file.
type Config struct {
	GitCommit               string         `yaml:"git_commit" envconfig:"DLAP_GIT_COMMIT"`
	GitTag                  string         `yaml:"git_tag" envconfig:"DLAP_GIT_TAG"`
	BuildTime               string         `yaml:"build_time" envconfig:"DLAP_BUILD_TIME"`
	IsProduction            bool           `yaml:"is_production" envconfig:"DLAP_IS_PRODUCTION"`
	LogLevel                zapcore.Level  `yaml:"log_level" envconfig:"DLAP_LOG_LEVEL"`
	LogFolder               string         `yaml:"log_folder" envconfig:"DLAP_LOG_FOLDER"`
	LogMaxSize              int            `yaml:"log_max_size" envconfig:"DLAP_LOG_MAX_SIZE"`
	OpsEndpointsEnable      bool           `yaml:"ops_endpoints_enable" envconfig:"DLAP_OPS_ENDPOINTS_ENABLE"`
	ProfilerEndpointsEnable bool           `yaml:"profiler_endpoints_enable" envconfig:"DLAP_PROFILER_ENDPOINTS_ENABLE"`
	Server                  ServerConfig   `yaml:"server"`
	Database                DatabaseConfig `yaml:"database"`
	Redis                   RedisConfig    `yaml:"redis"`
	BoltDB                  BoltDBConfig   `yaml:"boltdb"`
	Auth                    AuthConfig     `yaml:"auth"`
	Uploads                 UploadsConfig  `yaml:"uploads"`
}

type ServerConfig struct {
	Host                    string        `yaml:"host" envconfig:"DLAP_SERVER_HOST"`
	Port                    string        `yaml:"port" envconfig:"DLAP_SERVER_PORT"`
	ReadTimeout             time.Duration `yaml:"read_timeout" envconfig:"DLAP_SERVER_READ_TIMEOUT"`
	WriteTimeout            time.Duration `yaml:"write_timeout" envconfig:"DLAP_SERVER_WRITE_TIMEOUT"`
	RequestTimeout          time.Duration `yaml:"request_timeout" envconfig:"DLAP_SERVER_REQUEST_TIMEOUT"` // Time to wait for a request to finish
	LongRequestWriteTimeout time.Duration `yaml:"long_request_write_timeout" envconfig:"DLAP_SERVER_LONG_REQUEST_WRITE_TIMEOUT"`
	ShutdownTimeout         time.Duration `yaml:"shutdown_timeout" envconfig:"DLAP_SERVER_SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver" envconfig:"DLAP_DATABASE_DRIVER"`
	DSN             string        `yaml:"dsn" envconfig:"DLAP_DATABASE_DSN" json:"-"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"DLAP_DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"DLAP_DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"DLAP_DATABASE_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" envconfig:"DLAP_DATABASE_CONN_MAX_IDLE_TIME"`
}

type RedisConfig struct {
	Host          string        `yaml:"host" envconfig:"DLAP_REDIS_HOST"`
	Port          string        `yaml:"port" envconfig:"DLAP_REDIS_PORT"`
	DialTimeout   time.Duration `yaml:"dial_timeout" envconfig:"DLAP_REDIS_DIAL_TIMEOUT"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"DLAP_REDIS_READ_TIMEOUT"`
	WriteTimeout  time.Duration `yaml:"write_timeout" envconfig:"DLAP_REDIS_WRITE_TIMEOUT"`
	PoolSize      int           `yaml:"pool_size" envconfig:"DLAP_REDIS_POOL_SIZE"`
	PoolTimeout   time.Duration `yaml:"pool_timeout" envconfig:"DLAP_REDIS_POOL_TIMEOUT"`
	Username      string        `yaml:"username" envconfig:"DLAP_REDIS_USERNAME"`
	Password      string        `yaml:"password" envconfig:"DLAP_REDIS_PASSWORD" json:"-"`
	DatabaseIndex int           `yaml:"db_index" envconfig:"DLAP_REDIS_DATABASE_INDEX"`
	CacheTTL      time.Duration `yaml:"cache_ttl" envconfig:"DLAP_REDIS_CACHE_TTL"`
}

type BoltDBConfig struct {
	FilePath   string        `yaml:"filepath" envconfig:"DLAP_BOLTDB_FILE_PATH"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"DLAP_BOLTDB_TIMEOUT"`
	BucketName string        `yaml:"bucket_name" envconfig:"DLAP_BOLTDB_BUCKET_NAME"`
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret" envconfig:"DLAP_AUTH_JWT_SECRET" json:"-"`
	JWTTTL     time.Duration `yaml:"jwt_ttl" envconfig:"DLAP_AUTH_JWT_TTL"`
	BcryptCost int           `yaml:"bcrypt_cost" envconfig:"DLAP_AUTH_BCRYPT_COST"`
}

type UploadsConfig struct {
	Folder      string `yaml:"folder" envconfig:"DLAP_UPLOADS_FOLDER"`
	BaseURL     string `yaml:"base_url" envconfig:"DLAP_UPLOADS_BASE_URL"`
	MaxFileSize int64  `yaml:"max_file_size" envconfig:"DLAP_UPLOADS_MAX_FILE_SIZE"`
}

// LoadConfigFile provides an instance of config structure for the all application.
func LoadConfigFile(configFile string) (*Config, error) {
	file, err := os.Open(configFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cfg := &Config{}
	yd := yaml.NewDecoder(file)
	err = yd.Decode(cfg)

	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigEnvs reads the environments variables and provides an instance of the App config.
func LoadConfigEnvs(prefix string, config *Config) error {
	return envconfig.Process(prefix, config)
}

// InitConfig setup defaults values for non provided parameters
// and configures build tags values to be used if provided.
func InitConfig(config *Config, gitCommit, gitTag, buildTime string) error {
	if len(gitCommit) != 0 {
		config.GitCommit = gitCommit
	}

	if len(gitTag) != 0 {
		config.GitTag = gitTag
	}

	if len(buildTime) != 0 {
		config.BuildTime = buildTime
	}

	if len(config.Server.Host) == 0 || len(config.Server.Port) == 0 {
		return errors.New("make sure to set valid server address and port in configuration file")
	}

	if len(config.Redis.Host) == 0 || len(config.Redis.Port) == 0 {
		return errors.New("make sure to set valid redis address and port in configuration file")
	}

	switch config.Database.Driver {
	case DriverSQLite, DriverPostgres:
	case "":
		config.Database.Driver = DriverSQLite
	default:
		return fmt.Errorf("unsupported database driver %q", config.Database.Driver)
	}

	if len(config.Database.DSN) == 0 {
		return errors.New("make sure to set a valid database dsn in configuration file")
	}

	if len(config.Auth.JWTSecret) < 16 {
		return errors.New("make sure to set a jwt secret of at least 16 characters")
	}

	if config.Auth.JWTTTL == 0 {
		config.Auth.JWTTTL = 24 * time.Hour
	}

	if config.Auth.BcryptCost == 0 {
		config.Auth.BcryptCost = 10
	}

	if len(config.Uploads.Folder) == 0 {
		config.Uploads.Folder = "./uploads"
	}

	if config.Uploads.MaxFileSize == 0 {
		config.Uploads.MaxFileSize = 5 << 20
	}

	if config.LogMaxSize == 0 {
		config.LogMaxSize = 10
	}

	return nil
}

// LoadAndInitConfigs loads in order the configs from various predefined sources
// then build the App configuration data.
func LoadAndInitConfigs(configFile, envFile, gitCommit, gitTag, buildTime string) (*Config, error) {
	// Setup the yaml configuration from file.
	config, err := LoadConfigFile(configFile)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from file: %s", err)
	}

	// Set the environment configuration. The env file is optional.
	if _, serr := os.Stat(envFile); serr == nil {
		if err = godotenv.Load(envFile); err != nil {
			return config, fmt.Errorf("failed to set environment configurations: %s", err)
		}
	}

	// Use environment variables with prefix `DLAP`.
	err = LoadConfigEnvs("DLAP", config)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from environment: %s", err)
	}

	err = InitConfig(config, gitCommit, gitTag, buildTime)
	if err != nil {
		return config, fmt.Errorf("failed to initialize configurations: %s", err)
	}
	return config, nil
}
