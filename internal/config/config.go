// Package config содержит логику чтения конфигурации сервиса магазина материалов.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultPaymentGatewayURL задаёт адрес платёжного шлюза по умолчанию.
const DefaultPaymentGatewayURL = "https://api.tosspayments.com"

// Config содержит параметры конфигурации сервиса магазина материалов.
type Config struct {
	RunAddress        string `env:"RUN_ADDRESS"`
	DatabaseURI       string `env:"DATABASE_URI"`
	PaymentGatewayURL string `env:"PAYMENT_GATEWAY_URL"`
	PaymentSecretKey  string `env:"PAYMENT_SECRET_KEY"`

	AuthSecret string `env:"AUTH_SECRET"`

	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string `env:"LOG_FORMAT" envDefault:"json"`
	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"academy"`

	Redis  RedisConfig
	S3     S3Config
	Solapi SolapiConfig

	TelegramBotToken    string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramAdminChatID int64  `env:"TELEGRAM_ADMIN_CHAT_ID"`

	NotifyTimeout time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
}

// RedisConfig содержит параметры подключения к кэшу рекомендаций.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	TTL      time.Duration `env:"RECOMMEND_CACHE_TTL" envDefault:"5m"`
}

// S3Config содержит параметры объектного хранилища файлов материалов.
type S3Config struct {
	Bucket          string        `env:"S3_BUCKET"`
	Region          string        `env:"S3_REGION" envDefault:"ap-northeast-2"`
	AccessKeyID     string        `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string        `env:"S3_SECRET_ACCESS_KEY"`
	URLTTL          time.Duration `env:"DOWNLOAD_URL_TTL" envDefault:"10m"`
}

// SolapiConfig содержит параметры отправки уведомлений через Solapi.
type SolapiConfig struct {
	APIKey            string `env:"SOLAPI_API_KEY"`
	APISecret         string `env:"SOLAPI_API_SECRET"`
	SenderPhone       string `env:"SOLAPI_SENDER_PHONE"`
	KakaoPFID         string `env:"SOLAPI_KAKAO_PFID"`
	ApplicantTemplate string `env:"SOLAPI_TEMPLATE_APPLICANT"`
	AdminTemplate     string `env:"SOLAPI_TEMPLATE_ADMIN"`
	ScheduleTemplate  string `env:"SOLAPI_TEMPLATE_SCHEDULE"`
	AdminPhone        string `env:"SOLAPI_ADMIN_PHONE"`
	BrandName         string `env:"SOLAPI_BRAND_NAME"`
	OptOutPhone       string `env:"SOLAPI_OPT_OUT_PHONE"`
	ConsentVersion    string `env:"MARKETING_CONSENT_VERSION" envDefault:"2024-01"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envGatewayURL := cfg.PaymentGatewayURL

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PaymentGatewayURL, "g", DefaultPaymentGatewayURL, "payment gateway base URL")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envGatewayURL != "" {
		cfg.PaymentGatewayURL = envGatewayURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.PaymentGatewayURL == "" {
		cfg.PaymentGatewayURL = DefaultPaymentGatewayURL
	}

	return cfg, nil
}
