package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	R2        R2Config
	Worker    WorkerConfig
	Source    SourceConfig
	Pipeline  PipelineConfig
	Paths     PathsConfig
	Cleanup   CleanupConfig
	Gateway   GatewayConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address is configured. Without it the
// server falls back to the in-memory queue and job store.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	JobsPerHour    int
	UploadsPerHour int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type WorkerConfig struct {
	Concurrency int
	MaxAttempts int
	RetryBase   time.Duration
	JobTimeout  time.Duration
}

type SourceConfig struct {
	MaxDuration     time.Duration
	DownloadTimeout time.Duration
	MaxRetries      int
	RetryBase       time.Duration
	Downloader      string
	Fallback        string
}

type PipelineConfig struct {
	FFmpegPath       string
	StageTimeout     time.Duration
	EncodeTimeout    time.Duration
	SilenceThreshold float64 // dB; repair below this after the transform stage
	FinalGuard       float64 // dB; single-shot boost below this on the MP3
	TextureDir       string
	Bitrate          string
	SampleRate       int
	Channels         int
}

type PathsConfig struct {
	UploadDir string
	WorkDir   string
	OutputDir string
}

type CleanupConfig struct {
	Retention time.Duration
	Schedule  string
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("ratelimit.jobs_per_hour", "RATELIMIT_JOBS_PER_HOUR")
	_ = viper.BindEnv("ratelimit.uploads_per_hour", "RATELIMIT_UPLOADS_PER_HOUR")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = viper.BindEnv("worker.max_attempts", "WORKER_MAX_ATTEMPTS")
	_ = viper.BindEnv("worker.retry_base_sec", "WORKER_RETRY_BASE_SEC")
	_ = viper.BindEnv("worker.job_timeout_sec", "WORKER_JOB_TIMEOUT_SEC")
	_ = viper.BindEnv("source.max_duration_sec", "SOURCE_MAX_DURATION_SEC")
	_ = viper.BindEnv("source.download_timeout_sec", "SOURCE_DOWNLOAD_TIMEOUT_SEC")
	_ = viper.BindEnv("source.max_retries", "SOURCE_MAX_RETRIES")
	_ = viper.BindEnv("source.retry_base_sec", "SOURCE_RETRY_BASE_SEC")
	_ = viper.BindEnv("source.downloader", "SOURCE_DOWNLOADER")
	_ = viper.BindEnv("source.fallback", "SOURCE_FALLBACK")
	_ = viper.BindEnv("pipeline.ffmpeg_path", "FFMPEG_PATH")
	_ = viper.BindEnv("pipeline.stage_timeout_sec", "PIPELINE_STAGE_TIMEOUT_SEC")
	_ = viper.BindEnv("pipeline.encode_timeout_sec", "PIPELINE_ENCODE_TIMEOUT_SEC")
	_ = viper.BindEnv("pipeline.silence_threshold_db", "PIPELINE_SILENCE_THRESHOLD_DB")
	_ = viper.BindEnv("pipeline.final_guard_db", "PIPELINE_FINAL_GUARD_DB")
	_ = viper.BindEnv("pipeline.texture_dir", "PIPELINE_TEXTURE_DIR")
	_ = viper.BindEnv("paths.upload_dir", "UPLOAD_DIR")
	_ = viper.BindEnv("paths.work_dir", "WORK_DIR")
	_ = viper.BindEnv("paths.output_dir", "OUTPUT_DIR")
	_ = viper.BindEnv("cleanup.retention_min", "CLEANUP_RETENTION_MIN")
	_ = viper.BindEnv("cleanup.schedule", "CLEANUP_SCHEDULE")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.jobs_per_hour", 20)
	viper.SetDefault("ratelimit.uploads_per_hour", 50)

	// Worker defaults
	viper.SetDefault("worker.concurrency", 2)
	viper.SetDefault("worker.max_attempts", 3)
	viper.SetDefault("worker.retry_base_sec", 2)
	viper.SetDefault("worker.job_timeout_sec", 180)

	// Source acquisition defaults
	viper.SetDefault("source.max_duration_sec", 600)
	viper.SetDefault("source.download_timeout_sec", 60)
	viper.SetDefault("source.max_retries", 3)
	viper.SetDefault("source.retry_base_sec", 1)
	viper.SetDefault("source.downloader", "yt-dlp")
	viper.SetDefault("source.fallback", "youtube-dl")

	// Pipeline defaults
	viper.SetDefault("pipeline.ffmpeg_path", "ffmpeg")
	viper.SetDefault("pipeline.stage_timeout_sec", 25)
	viper.SetDefault("pipeline.encode_timeout_sec", 20)
	viper.SetDefault("pipeline.silence_threshold_db", -20.0)
	viper.SetDefault("pipeline.final_guard_db", -30.0)
	viper.SetDefault("pipeline.texture_dir", "assets/textures")
	viper.SetDefault("pipeline.bitrate", "320k")
	viper.SetDefault("pipeline.sample_rate", 44100)
	viper.SetDefault("pipeline.channels", 2)

	// Path defaults
	viper.SetDefault("paths.upload_dir", "uploads")
	viper.SetDefault("paths.work_dir", filepath.Join(os.TempDir(), "lofi-work"))
	viper.SetDefault("paths.output_dir", "processed")

	// Cleanup defaults
	viper.SetDefault("cleanup.retention_min", 30)
	viper.SetDefault("cleanup.schedule", "@every 10m")

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			JobsPerHour:    viper.GetInt("ratelimit.jobs_per_hour"),
			UploadsPerHour: viper.GetInt("ratelimit.uploads_per_hour"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Worker: WorkerConfig{
			Concurrency: viper.GetInt("worker.concurrency"),
			MaxAttempts: viper.GetInt("worker.max_attempts"),
			RetryBase:   time.Duration(viper.GetInt("worker.retry_base_sec")) * time.Second,
			JobTimeout:  time.Duration(viper.GetInt("worker.job_timeout_sec")) * time.Second,
		},
		Source: SourceConfig{
			MaxDuration:     time.Duration(viper.GetInt("source.max_duration_sec")) * time.Second,
			DownloadTimeout: time.Duration(viper.GetInt("source.download_timeout_sec")) * time.Second,
			MaxRetries:      viper.GetInt("source.max_retries"),
			RetryBase:       time.Duration(viper.GetInt("source.retry_base_sec")) * time.Second,
			Downloader:      viper.GetString("source.downloader"),
			Fallback:        viper.GetString("source.fallback"),
		},
		Pipeline: PipelineConfig{
			FFmpegPath:       viper.GetString("pipeline.ffmpeg_path"),
			StageTimeout:     time.Duration(viper.GetInt("pipeline.stage_timeout_sec")) * time.Second,
			EncodeTimeout:    time.Duration(viper.GetInt("pipeline.encode_timeout_sec")) * time.Second,
			SilenceThreshold: viper.GetFloat64("pipeline.silence_threshold_db"),
			FinalGuard:       viper.GetFloat64("pipeline.final_guard_db"),
			TextureDir:       viper.GetString("pipeline.texture_dir"),
			Bitrate:          viper.GetString("pipeline.bitrate"),
			SampleRate:       viper.GetInt("pipeline.sample_rate"),
			Channels:         viper.GetInt("pipeline.channels"),
		},
		Paths: PathsConfig{
			UploadDir: viper.GetString("paths.upload_dir"),
			WorkDir:   viper.GetString("paths.work_dir"),
			OutputDir: viper.GetString("paths.output_dir"),
		},
		Cleanup: CleanupConfig{
			Retention: time.Duration(viper.GetInt("cleanup.retention_min")) * time.Minute,
			Schedule:  viper.GetString("cleanup.schedule"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
