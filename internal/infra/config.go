package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xela07ax/spaceai-agent-pulse/internal/domain"
)

// Config — корневая структура конфигурации монитора.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// Глобальный рейт-лимит API: запросов в секунду и burst
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// MetricsConfig — отдельный листенер для Prometheus.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DatabaseConfig описывает подключение к PostgreSQL (архив задач).
// Пустой URL = архив выключен, монитор полностью автономен.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns"`
}

// RedisConfig описывает подключение к Redis (зеркало состояния).
// Пустой Addr = персистентность выключена, работаем только в памяти.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам, настройки JWT и учетки операторов.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	// БД у монитора опциональна, поэтому учетки живут в конфиге
	Operators  []domain.Operator `mapstructure:"operators"`
	PublicKey  []byte
	PrivateKey []byte
}

// MonitorConfig — специфичные настройки ядра мониторинга.
type MonitorConfig struct {
	SampleInterval   time.Duration `mapstructure:"sample_interval"`   // Период снятия SystemMetrics
	MetricsRetention time.Duration `mapstructure:"metrics_retention"` // Окно истории срезов
	AlertRetention   time.Duration `mapstructure:"alert_retention"`   // Окно хранения алертов
	TaskRetention    time.Duration `mapstructure:"task_retention"`    // Терминальные задачи в памяти
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"` // Порог перевода агента в offline

	RecentTasksLimit    int `mapstructure:"recent_tasks_limit"`    // Размер recent_tasks в дашборде
	HistoryDefaultHours int `mapstructure:"history_default_hours"` // Окно metrics_history в дашборде

	LivePushInterval time.Duration `mapstructure:"live_push_interval"` // Период пуша в WebSocket-поток

	Thresholds ThresholdConfig `mapstructure:"thresholds"`

	// Write-behind зеркало в Redis
	MirrorBufferSize    int           `mapstructure:"mirror_buffer_size"`
	MirrorFlushInterval time.Duration `mapstructure:"mirror_flush_interval"`

	// Архивация терминальных задач в PostgreSQL
	ArchiveBatchSize     int           `mapstructure:"archive_batch_size"`
	ArchiveFlushInterval time.Duration `mapstructure:"archive_flush_interval"`
}

// ThresholdConfig — статические пороги алертов. Меняются только конфигом,
// никакого динамического тюнинга в рантайме.
type ThresholdConfig struct {
	CPUPercent    float64 `mapstructure:"cpu_percent"`
	MemoryPercent float64 `mapstructure:"memory_percent"`
	QueueDepth    int     `mapstructure:"queue_depth"`
	AvgResponseMS float64 `mapstructure:"avg_response_ms"`
	ErrorRate     float64 `mapstructure:"error_rate"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка ключей из Файла ИЛИ из ENV
	// Сначала проверяем, не лежит ли сам PEM-ключ в ENV (для Docker/K8s)
	// Если нет — читаем файл по указанному пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit_rps", 100)
	v.SetDefault("server.rate_limit_burst", 20)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("database.max_conns", 10)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("monitor.sample_interval", 30*time.Second)
	v.SetDefault("monitor.metrics_retention", 24*time.Hour)
	v.SetDefault("monitor.alert_retention", 24*time.Hour)
	v.SetDefault("monitor.task_retention", 48*time.Hour)
	v.SetDefault("monitor.heartbeat_timeout", 5*time.Minute)
	v.SetDefault("monitor.recent_tasks_limit", 20)
	v.SetDefault("monitor.history_default_hours", 6)
	v.SetDefault("monitor.live_push_interval", 5*time.Second)

	// Пороги — значения из продовой эксплуатации, менять осознанно
	v.SetDefault("monitor.thresholds.cpu_percent", 90.0)
	v.SetDefault("monitor.thresholds.memory_percent", 85.0)
	v.SetDefault("monitor.thresholds.queue_depth", 100)
	v.SetDefault("monitor.thresholds.avg_response_ms", 5000.0)
	v.SetDefault("monitor.thresholds.error_rate", 0.10)

	v.SetDefault("monitor.mirror_buffer_size", 1000)
	v.SetDefault("monitor.mirror_flush_interval", 500*time.Millisecond)
	v.SetDefault("monitor.archive_batch_size", 100)
	v.SetDefault("monitor.archive_flush_interval", 1*time.Second)
}

// loadKeyResource — универсальный хелпер архитектора
func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (Base64 или PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
