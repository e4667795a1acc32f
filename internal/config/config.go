package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	MySQL    MySQLConfig    `json:"mysql"`
	Redis    RedisConfig    `json:"redis"`
	Telegram TelegramConfig `json:"telegram"`
	Security SecurityConfig `json:"security"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env      string `json:"env"`       // 运行环境: local / prod
	LogLevel string `json:"log_level"` // 日志级别: debug / info / warn / error
	HTTPAddr string `json:"http_addr"` // API 服务监听地址

	CodeTTL       time.Duration `json:"code_ttl"`        // 一次性绑定码有效期（如 "5m"）
	CodeRateLimit float64       `json:"code_rate_limit"` // 绑定码签发限流速率（token/s，0 表示不限）
	CodeRateBurst float64       `json:"code_rate_burst"` // 绑定码签发限流桶容量

	NotifyTimeout  time.Duration `json:"notify_timeout"`  // 单次外发通知超时
	NotifyWorkers  int           `json:"notify_workers"`  // 通知 worker 数量
	NotifyCapacity int           `json:"notify_capacity"` // 内存通知队列容量

	// Redis Streams 通知队列配置
	EnableRedisQueue bool   `json:"enable_redis_queue"` // 是否改用 Redis Streams 派发通知
	NotifyStream     string `json:"notify_stream"`      // Redis Stream 名称
	NotifyGroup      string `json:"notify_group"`       // Consumer Group 名称

	ReminderTime string `json:"reminder_time"` // 每日到期提醒时间 "HH:MM"，空字符串关闭
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 配置（限流与可选的通知队列）。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)，为空则不连接
	Password string `json:"password"` // Redis 密码
}

// TelegramConfig 通知投递通道配置。
type TelegramConfig struct {
	BotToken    string `json:"bot_token"`    // Bot API token，为空则通知只记日志
	BotUsername string `json:"bot_username"` // 用于生成 deeplink；为空则不返回 deeplink
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"` // 会话令牌签名密钥，为空则不签发 token
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值；
// 环境变量始终优先覆盖文件内容。
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:      "local",
			LogLevel: "info",
			HTTPAddr: ":3000",

			CodeTTL:       5 * time.Minute,
			CodeRateLimit: 0,
			CodeRateBurst: 3,

			NotifyTimeout:  5 * time.Second,
			NotifyWorkers:  4,
			NotifyCapacity: 256,

			EnableRedisQueue: false,
			NotifyStream:     "tracker:notify:queue",
			NotifyGroup:      "notify_group",

			ReminderTime: "09:00",
		},
		MySQL: MySQLConfig{
			DSN: "taskuser:taskpass@tcp(localhost:3306)/taskdb?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "",
			Password: "",
		},
		Telegram: TelegramConfig{
			BotToken:    "",
			BotUsername: "",
		},
		Security: SecurityConfig{
			JWTSecret: "",
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.CodeTTL == 0 {
		cfg.App.CodeTTL = defaults.App.CodeTTL
	}
	if cfg.App.CodeRateBurst == 0 {
		cfg.App.CodeRateBurst = defaults.App.CodeRateBurst
	}
	if cfg.App.NotifyTimeout == 0 {
		cfg.App.NotifyTimeout = defaults.App.NotifyTimeout
	}
	if cfg.App.NotifyWorkers == 0 {
		cfg.App.NotifyWorkers = defaults.App.NotifyWorkers
	}
	if cfg.App.NotifyCapacity == 0 {
		cfg.App.NotifyCapacity = defaults.App.NotifyCapacity
	}
	if cfg.App.NotifyStream == "" {
		cfg.App.NotifyStream = defaults.App.NotifyStream
	}
	if cfg.App.NotifyGroup == "" {
		cfg.App.NotifyGroup = defaults.App.NotifyGroup
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN", "TG_BOT_TOKEN")
	_ = viper.BindEnv("telegram_bot_username", "TELEGRAM_BOT_USERNAME", "TG_BOT_USERNAME")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	} else if v := os.Getenv("PORT"); v != "" {
		cfg.App.HTTPAddr = ":" + v
	}
	if v := os.Getenv("APP_CODE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.CodeTTL = d
		}
	}
	if v := os.Getenv("APP_CODE_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.CodeRateLimit = f
		}
	}
	if v := os.Getenv("APP_CODE_RATE_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.CodeRateBurst = f
		}
	}
	if v := os.Getenv("APP_NOTIFY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.NotifyTimeout = d
		}
	}
	if v := os.Getenv("APP_NOTIFY_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.NotifyWorkers = i
		}
	}
	if v := os.Getenv("APP_NOTIFY_CAPACITY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.App.NotifyCapacity = i
		}
	}
	if v := os.Getenv("APP_ENABLE_REDIS_QUEUE"); v != "" {
		cfg.App.EnableRedisQueue = v == "true" || v == "1"
	}
	if v := os.Getenv("APP_NOTIFY_STREAM"); v != "" {
		cfg.App.NotifyStream = v
	}
	if v := os.Getenv("APP_NOTIFY_GROUP"); v != "" {
		cfg.App.NotifyGroup = v
	}
	if v := os.Getenv("APP_REMINDER_TIME"); v != "" {
		cfg.App.ReminderTime = v
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := viper.GetString("telegram_bot_token"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := viper.GetString("telegram_bot_username"); v != "" {
		cfg.Telegram.BotUsername = v
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "" {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if v := viper.GetString("db_host"); v != "" {
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = v + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}
}

// parseMySQLDSN 解析 DSN，失败时返回可用的空配置。
func parseMySQLDSN(dsn string) *mysql.Config {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		parsed = mysql.NewConfig()
		parsed.Net = "tcp"
		parsed.Addr = "localhost:3306"
		parsed.ParseTime = true
	}
	return parsed
}

func hasAnyEnv(keys ...string) bool {
	for _, k := range keys {
		if os.Getenv(k) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(key, fromAddr, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if strings.Contains(fromAddr, ":") {
		parts := strings.SplitN(fromAddr, ":", 2)
		if parts[1] != "" {
			return parts[1]
		}
	}
	return fallback
}
