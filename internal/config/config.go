package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPConfig      HTTPConfig
	DiscoveryConfig DiscoveryConfig
	SearchConfig    SearchConfig
	ProcessorConfig ProcessorConfig
	LogConfig       LogConfig
	Tvp             TvpNames
}

type HTTPConfig struct {
	Timeout         time.Duration
	MaxIdleConns    int
	MaxConnsPerHost int
	UserAgent       string
	IdleConnTimeout time.Duration
	AuthToken       *string
	RetryAttempts   int
	RetryDelay      time.Duration
}

// DiscoveryConfig describes where the backend may live. Origin is the
// scheme+host the frontend is served from; candidate ports are probed on its
// hostname in order.
type DiscoveryConfig struct {
	Origin          string
	Ports           []int
	HealthTimeout   time.Duration
	MonitorInterval time.Duration
	RedisAddr       *string
	RedisPassword   string
	RedisDB         int
	RedisKey        string
	RedisTTL        time.Duration
}

type SearchConfig struct {
	PageSize       int
	QueryDebounce  time.Duration
	FilterDebounce time.Duration
}

type ProcessorConfig struct {
	MaxConcurrency int
	RetryAttempts  int
	RetryDelay     time.Duration
	PageDelay      time.Duration
	MaxPages       int
	BatchSize      int
	FlushTimeout   time.Duration
	ChannelSize    int
}

type LogConfig struct {
	Level       string
	Development bool
}

type TvpNames struct {
	MemorialTvpName   string
	DuplicateTvpName  string
	MemorialIdTvpName string
}

type DbConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

var DefaultPorts = []int{5000, 5001, 5005, 5002, 8000, 8080, 3001}

// LoadDotEnv reads a .env file into the environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

func NewConfig() *Config {
	httptimeout := LoadDefaultInt("HTTP_TIMEOUT_SECS", 30)
	maxidleconns := LoadDefaultInt("HTTP_MAX_IDLE_CONNS", 100)
	maxconnsperhost := LoadDefaultInt("HTTP_MAX_CONNS_PER_HOST", 10)
	idleconntimeout := LoadDefaultInt("HTTP_IDLE_CONN_TIMEOUT_SECS", 30)
	useragent := LoadDefaultString("HTTP_USER_AGENT", "lapida-client/1.0")
	authtoken := LoadOptionalString("LAPIDA_AUTH_TOKEN")
	httpretries := LoadDefaultInt("HTTP_RETRY_ATTEMPTS", 2)
	httpretrydelay := LoadDefaultInt("HTTP_RETRY_DELAY_MS", 500)

	origin := LoadDefaultString("LAPIDA_ORIGIN", "http://localhost:3000")
	ports := LoadDefaultInts("LAPIDA_API_PORTS", DefaultPorts)
	healthtimeout := LoadDefaultInt("LAPIDA_HEALTH_TIMEOUT_MS", 2000)
	monitorinterval := LoadDefaultInt("LAPIDA_MONITOR_INTERVAL_SECS", 10)
	redisaddr := LoadOptionalString("REDIS_ADDR")
	redispassword := LoadDefaultString("REDIS_PASSWORD", "")
	redisdb := LoadDefaultInt("REDIS_DB", 0)
	rediskey := LoadDefaultString("LAPIDA_DISCOVERY_KEY", "lapida:api-base")
	redisttl := LoadDefaultInt("LAPIDA_DISCOVERY_TTL_SECS", 3600)

	pagesize := LoadDefaultInt("SEARCH_PAGE_SIZE", 12)
	querydebounce := LoadDefaultInt("SEARCH_QUERY_DEBOUNCE_MS", 300)
	filterdebounce := LoadDefaultInt("SEARCH_FILTER_DEBOUNCE_MS", 500)

	maxconcurrency := LoadDefaultInt("PROCESSOR_MAX_CONCURRENCY", 4)
	retryattempts := LoadDefaultInt("PROCESSOR_RETRY_ATTEMPTS", 3)
	retrydelay := LoadDefaultInt("PROCESSOR_RETRY_DELAY_MS", 2000)
	pagedelay := LoadDefaultInt("PROCESSOR_PAGE_DELAY_MS", 250)
	maxpages := LoadDefaultInt("PROCESSOR_MAX_PAGES", 500)
	batchsize := LoadDefaultInt("PROCESSOR_BATCH_SIZE", 48)
	flushTimeout := LoadDefaultInt("PROCESSOR_FLUSH_TIMEOUT_SECS", 5)
	channelSize := LoadDefaultInt("PROCESSOR_CHANNEL_SIZE", 1000)

	loglevel := LoadDefaultString("LOG_LEVEL", "info")
	logdev := LoadDefaultString("APP_ENV", "production") == "development"

	memTvpName := LoadDefaultString("MEMORIAL_TVP_NAME", "dbo.MemorialSnapshotType")
	dupTvpName := LoadDefaultString("DUPLICATE_TVP_NAME", "dbo.DuplicateSnapshotType")
	memIdTvpName := LoadDefaultString("MEMORIAL_ID_TVP_NAME", "dbo.MemorialIdList")
	return &Config{
		HTTPConfig: HTTPConfig{
			Timeout:         time.Duration(httptimeout) * time.Second,
			MaxIdleConns:    maxidleconns,
			MaxConnsPerHost: maxconnsperhost,
			UserAgent:       useragent,
			IdleConnTimeout: time.Duration(idleconntimeout) * time.Second,
			AuthToken:       authtoken,
			RetryAttempts:   httpretries,
			RetryDelay:      time.Duration(httpretrydelay) * time.Millisecond,
		},
		DiscoveryConfig: DiscoveryConfig{
			Origin:          strings.TrimRight(origin, "/"),
			Ports:           ports,
			HealthTimeout:   time.Duration(healthtimeout) * time.Millisecond,
			MonitorInterval: time.Duration(monitorinterval) * time.Second,
			RedisAddr:       redisaddr,
			RedisPassword:   redispassword,
			RedisDB:         redisdb,
			RedisKey:        rediskey,
			RedisTTL:        time.Duration(redisttl) * time.Second,
		},
		SearchConfig: SearchConfig{
			PageSize:       pagesize,
			QueryDebounce:  time.Duration(querydebounce) * time.Millisecond,
			FilterDebounce: time.Duration(filterdebounce) * time.Millisecond,
		},
		ProcessorConfig: ProcessorConfig{
			MaxConcurrency: maxconcurrency,
			RetryAttempts:  retryattempts,
			RetryDelay:     time.Duration(retrydelay) * time.Millisecond,
			PageDelay:      time.Duration(pagedelay) * time.Millisecond,
			MaxPages:       maxpages,
			BatchSize:      batchsize,
			FlushTimeout:   time.Duration(flushTimeout) * time.Second,
			ChannelSize:    channelSize,
		},
		LogConfig: LogConfig{
			Level:       loglevel,
			Development: logdev,
		},
		Tvp: TvpNames{
			MemorialTvpName:   memTvpName,
			DuplicateTvpName:  dupTvpName,
			MemorialIdTvpName: memIdTvpName,
		},
	}
}

func NewDbConfig() *DbConfig {
	return &DbConfig{
		Host:     LoadDefaultString("DB_HOST", "localhost"),
		Port:     LoadDefaultInt("DB_PORT", 1433),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   LoadDefaultString("DB_NAME", "lapida_archive"),
	}
}

func LoadDefaultInt(name string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return defaultValue
	}
	return value
}

// LoadDefaultInts parses a comma separated list. Any malformed entry makes
// the whole value fall back to the default.
func LoadDefaultInts(name string, defaultValue []int) []int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return append([]int(nil), defaultValue...)
	}
	parts := strings.Split(raw, ",")
	values := make([]int, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || v <= 0 {
			return append([]int(nil), defaultValue...)
		}
		values = append(values, v)
	}
	return values
}

func LoadDefaultString(name string, defaultValue string) string {
	value := os.Getenv(name)
	if value == "" {
		return defaultValue
	}
	return value
}

func LoadRequiredString(name string) string {
	value := os.Getenv(name)
	if value == "" {
		panic("Required environment variable " + name + " is not set")
	}
	return value
}

func LoadOptionalString(name string) *string {
	value := os.Getenv(name)
	if value == "" {
		return nil
	}
	return &value
}
