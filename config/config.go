package config

import (
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"artisan-onboarding"`

	// 平台 API 配置
	APIBaseURL     string        `env:"API_BASE_URL" envDefault:"http://localhost:8080"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	DialTimeout    time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`

	// 令牌存储配置
	// 持久作用域对应 "记住我"，会话作用域只存活于当前进程
	TokenDir      string `env:"TOKEN_DIR" envDefault:""` // 为空时使用 ~/.artisan
	TokenFileName string `env:"TOKEN_FILE_NAME" envDefault:"token"`
	RememberMe    bool   `env:"REMEMBER_ME" envDefault:"true"`

	// 上传配置
	UploadMaxInputBytes    int64 `env:"UPLOAD_MAX_INPUT_BYTES" envDefault:"10485760"` // 10 MB 输入上限
	UploadMaxOutputBytes   int64 `env:"UPLOAD_MAX_OUTPUT_BYTES" envDefault:"5242880"` // 5 MB 输出硬上限
	UploadRawFallbackBytes int64 `env:"UPLOAD_RAW_FALLBACK_BYTES" envDefault:"2097152"`
	UploadConcurrency      int   `env:"UPLOAD_CONCURRENCY" envDefault:"4"`

	// 压缩配置
	CompressMaxDimension int   `env:"COMPRESS_MAX_DIMENSION" envDefault:"800"`
	CompressQuality      int   `env:"COMPRESS_QUALITY" envDefault:"70"`
	CompressTargetBytes  int64 `env:"COMPRESS_TARGET_BYTES" envDefault:"307200"` // 300 KB 目标

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 可观测性配置，endpoint 为空时不导出
	OTLPEndpoint string `env:"OTLP_ENDPOINT" envDefault:""`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`
}

func init() {

	if err := godotenv.Load(); err != nil {

		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}

	validateConfig()
}

func validateConfig() {
	if Cfg.APIBaseURL == "" {
		log.Fatal("API_BASE_URL is required")
	}

	if Cfg.RequestTimeout <= 0 {
		log.Fatal("REQUEST_TIMEOUT must be positive")
	}

	if Cfg.UploadMaxOutputBytes > Cfg.UploadMaxInputBytes {
		log.Fatal("UPLOAD_MAX_OUTPUT_BYTES must not exceed UPLOAD_MAX_INPUT_BYTES")
	}

	if Cfg.CompressQuality < 1 || Cfg.CompressQuality > 100 {
		log.Fatal("COMPRESS_QUALITY must be within 1..100")
	}

	if Cfg.UploadConcurrency < 1 {
		log.Fatal("UPLOAD_CONCURRENCY must be at least 1")
	}
}

// Endpoint 拼接平台 API 的绝对地址
func (c *Config) Endpoint(path string) string {
	return strings.TrimRight(c.APIBaseURL, "/") + path
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
