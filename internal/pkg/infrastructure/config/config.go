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
)

//BuildingGroup maps a building code to the directory group whose members administer it
type BuildingGroup struct {
	Building string
	Group    string
}

//Config holds everything the service reads from its environment
type Config struct {
	ServiceName string
	Port        string
	LogLevel    string

	StoreDriver  string
	StoreTimeout time.Duration
	WorkbookPath string
	SQLitePath   string
	Database     DatabaseConfig

	Directory   DirectoryConfig
	Permissions PermissionConfig
	Redis       RedisConfig

	Connections ConnectionConfig
	MQTT        MQTTConfig

	AuthEmailHeader    string
	AllowedEmailDomain string

	DefaultSlideID  string
	DefaultLocation string
}

//DatabaseConfig holds the postgres connection parameters
type DatabaseConfig struct {
	Host     string
	User     string
	Name     string
	Password string
	SSLMode  string
}

//DSN formats the connection parameters the way the postgres driver expects them
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s dbname=%s sslmode=%s password=%s", c.Host, c.User, c.Name, c.SSLMode, c.Password)
}

//DirectoryConfig locates the group membership directory and its credentials
type DirectoryConfig struct {
	BaseURL         string
	CredentialsFile string
	Subject         string
	Token           string
	Timeout         time.Duration
}

//PermissionConfig describes the groups and cache policy used to resolve permissions
type PermissionConfig struct {
	AdminGroup     string
	BuildingGroups []BuildingGroup
	TTL            time.Duration
	ErrorTTL       time.Duration
	SweepInterval  time.Duration
}

//Buildings returns every configured building code in configuration order
func (c PermissionConfig) Buildings() []string {
	codes := make([]string, 0, len(c.BuildingGroups))
	for _, bg := range c.BuildingGroups {
		codes = append(codes, bg.Building)
	}
	return codes
}

//RedisConfig enables the shared permission cache when Addr is set
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

//ConnectionConfig tunes the live device connections
type ConnectionConfig struct {
	SweepInterval time.Duration
	StaleAfter    time.Duration
	Heartbeat     time.Duration
	QueueSize     int
}

//MQTTConfig enables the MQTT device transport when Broker is set
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

const defaultBuildingGroups = "SE=sign-se@orono.k12.mn.us,IS=sign-is@orono.k12.mn.us,MS=sign-ms@orono.k12.mn.us," +
	"HS=sign-hs@orono.k12.mn.us,DC=sign-dc@orono.k12.mn.us,DO=sign-do@orono.k12.mn.us"

//Load reads an optional .env file and then the process environment
func Load(serviceName string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var err error
	cfg := &Config{
		ServiceName: serviceName,
		Port:        getEnv("SERVICE_PORT", "8880"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		StoreDriver:  getEnv("STORE_DRIVER", "postgres"),
		WorkbookPath: getEnv("WORKBOOK_PATH", "signage.xlsx"),
		SQLitePath:   getEnv("SQLITE_PATH", "signage.db"),
		Database: DatabaseConfig{
			Host:     os.Getenv("SIGNAGE_DB_HOST"),
			User:     os.Getenv("SIGNAGE_DB_USER"),
			Name:     os.Getenv("SIGNAGE_DB_NAME"),
			Password: os.Getenv("SIGNAGE_DB_PASSWORD"),
			SSLMode:  getEnv("SIGNAGE_DB_SSLMODE", "require"),
		},

		Directory: DirectoryConfig{
			BaseURL:         getEnv("DIRECTORY_BASE_URL", "https://admin.googleapis.com/admin/directory/v1"),
			CredentialsFile: os.Getenv("DIRECTORY_CREDENTIALS_FILE"),
			Subject:         os.Getenv("DIRECTORY_SUBJECT"),
			Token:           os.Getenv("DIRECTORY_TOKEN"),
		},
		Permissions: PermissionConfig{
			AdminGroup: getEnv("ADMIN_GROUP", "sign-admin@orono.k12.mn.us"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		MQTT: MQTTConfig{
			Broker:   os.Getenv("MQTT_BROKER"),
			ClientID: getEnv("MQTT_CLIENT_ID", serviceName),
			Username: os.Getenv("MQTT_USERNAME"),
			Password: os.Getenv("MQTT_PASSWORD"),
		},

		AuthEmailHeader:    getEnv("AUTH_EMAIL_HEADER", "X-Forwarded-Email"),
		AllowedEmailDomain: getEnv("ALLOWED_EMAIL_DOMAIN", "orono.k12.mn.us"),
		DefaultSlideID:     getEnv("DEFAULT_SLIDE_ID", "1E7v2rVGN8TabxalUlXSHE2zEhJxv0tEXiCxE3FD99Ic"),
		DefaultLocation:    getEnv("DEFAULT_LOCATION", "Orono Public Schools"),
	}

	if cfg.Permissions.BuildingGroups, err = ParseBuildingGroups(getEnv("BUILDING_GROUPS", defaultBuildingGroups)); err != nil {
		return nil, err
	}

	// tickers and timeouts need a positive duration, only PERMISSION_ERROR_TTL may be 0 (do not cache failures)
	durations := []struct {
		key       string
		fallback  string
		dst       *time.Duration
		allowZero bool
	}{
		{"STORE_TIMEOUT", "10s", &cfg.StoreTimeout, false},
		{"DIRECTORY_TIMEOUT", "5s", &cfg.Directory.Timeout, false},
		{"PERMISSION_TTL", "15m", &cfg.Permissions.TTL, false},
		{"PERMISSION_ERROR_TTL", "30s", &cfg.Permissions.ErrorTTL, true},
		{"PERMISSION_SWEEP_INTERVAL", "1h", &cfg.Permissions.SweepInterval, false},
		{"CONNECTION_SWEEP_INTERVAL", "1m", &cfg.Connections.SweepInterval, false},
		{"CONNECTION_STALE_AFTER", "5m", &cfg.Connections.StaleAfter, false},
		{"SSE_HEARTBEAT", "30s", &cfg.Connections.Heartbeat, false},
	}
	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(getEnv(d.key, d.fallback)); err != nil {
			return nil, fmt.Errorf("invalid duration in %s: %w", d.key, err)
		}
		if *d.dst < 0 || (*d.dst == 0 && !d.allowZero) {
			return nil, fmt.Errorf("%s must be a positive duration, got %s", d.key, *d.dst)
		}
	}

	if cfg.Redis.DB, err = strconv.Atoi(getEnv("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.Connections.QueueSize, err = strconv.Atoi(getEnv("SSE_QUEUE_SIZE", "16")); err != nil || cfg.Connections.QueueSize < 1 {
		return nil, fmt.Errorf("SSE_QUEUE_SIZE must be a positive integer")
	}

	return cfg, nil
}

//ParseBuildingGroups parses "SE=group@domain,IS=other@domain" keeping the given order
func ParseBuildingGroups(s string) ([]BuildingGroup, error) {
	groups := []BuildingGroup{}
	seen := map[string]bool{}

	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			return nil, fmt.Errorf("malformed building group %q, expected CODE=group", pair)
		}

		code := strings.TrimSpace(parts[0])
		if seen[code] {
			return nil, fmt.Errorf("building %s is listed more than once", code)
		}
		seen[code] = true

		groups = append(groups, BuildingGroup{Building: code, Group: strings.TrimSpace(parts[1])})
	}

	return groups, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
