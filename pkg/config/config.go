package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Mail          MailConfig
	Program       ProgramConfig
	Notifications NotificationsConfig
	Diplomas      DiplomasConfig
	Stats         StatsConfig
	Locks         LocksConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret             string
	Issuer             string
	Expiration         time.Duration
	ParticipantSession time.Duration
	MemberSession      time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MailConfig holds SMTP settings for outbound notifications.
type MailConfig struct {
	Enabled    bool
	Host       string
	Port       string
	Username   string
	Password   string
	From       string
	AdminEmail string
}

// ProgramConfig captures the training program rules and public URLs.
type ProgramConfig struct {
	AttendanceThreshold     float64
	RegistrationURL         string
	ParticipantPortalURL    string
	MemberPortalURL         string
	NotifyNominatorOnReject bool
	GuardRejectedAttendance bool
	CertificateIssuer       string
	PasswordLength          int
}

// NotificationsConfig sizes the detached notification worker pool.
type NotificationsConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// DiplomasConfig controls where rendered diplomas are archived and how download links are signed.
type DiplomasConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// StatsConfig governs caching of nomination statistics.
type StatsConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// LocksConfig tunes per-nomination locking.
type LocksConfig struct {
	TTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:             v.GetString("JWT_SECRET"),
		Issuer:             v.GetString("JWT_ISSUER"),
		Expiration:         parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		ParticipantSession: parseDuration(v.GetString("PARTICIPANT_SESSION_TTL"), 7*24*time.Hour),
		MemberSession:      parseDuration(v.GetString("MEMBER_SESSION_TTL"), 30*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Mail = MailConfig{
		Enabled:    v.GetBool("MAIL_ENABLED"),
		Host:       v.GetString("SMTP_HOST"),
		Port:       v.GetString("SMTP_PORT"),
		Username:   v.GetString("SMTP_USERNAME"),
		Password:   v.GetString("SMTP_PASSWORD"),
		From:       v.GetString("SMTP_FROM"),
		AdminEmail: v.GetString("ADMIN_NOTIFICATION_EMAIL"),
	}

	threshold := v.GetFloat64("PROGRAM_ATTENDANCE_THRESHOLD")
	if threshold <= 0 {
		threshold = 21
	}
	passwordLength := v.GetInt("PROGRAM_PASSWORD_LENGTH")
	if passwordLength < 8 {
		passwordLength = 12
	}
	cfg.Program = ProgramConfig{
		AttendanceThreshold:     threshold,
		RegistrationURL:         v.GetString("PROGRAM_REGISTRATION_URL"),
		ParticipantPortalURL:    v.GetString("PROGRAM_PARTICIPANT_PORTAL_URL"),
		MemberPortalURL:         v.GetString("PROGRAM_MEMBER_PORTAL_URL"),
		NotifyNominatorOnReject: v.GetBool("PROGRAM_NOTIFY_NOMINATOR_ON_REJECT"),
		GuardRejectedAttendance: v.GetBool("PROGRAM_GUARD_REJECTED_ATTENDANCE"),
		CertificateIssuer:       v.GetString("PROGRAM_CERTIFICATE_ISSUER"),
		PasswordLength:          passwordLength,
	}

	cfg.Notifications = NotificationsConfig{
		Workers:    v.GetInt("NOTIFICATION_WORKERS"),
		BufferSize: v.GetInt("NOTIFICATION_BUFFER_SIZE"),
		MaxRetries: v.GetInt("NOTIFICATION_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFICATION_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Diplomas = DiplomasConfig{
		StorageDir:      v.GetString("DIPLOMAS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("DIPLOMAS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("DIPLOMAS_SIGNED_URL_TTL"), 24*time.Hour),
	}

	cfg.Stats = StatsConfig{
		CacheEnabled: v.GetBool("ENABLE_STATS_CACHE"),
		CacheTTL:     parseDuration(v.GetString("STATS_CACHE_TTL"), time.Minute),
	}

	cfg.Locks = LocksConfig{
		TTL: parseDuration(v.GetString("NOMINATION_LOCK_TTL"), 30*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "leadership_program")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "nomination-api")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("PARTICIPANT_SESSION_TTL", "168h")
	v.SetDefault("MEMBER_SESSION_TTL", "720h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MAIL_ENABLED", false)
	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", "1025")
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "noreply@localhost")
	v.SetDefault("ADMIN_NOTIFICATION_EMAIL", "")

	v.SetDefault("PROGRAM_ATTENDANCE_THRESHOLD", 21)
	v.SetDefault("PROGRAM_REGISTRATION_URL", "http://localhost:3000/nominee-registration")
	v.SetDefault("PROGRAM_PARTICIPANT_PORTAL_URL", "http://localhost:3000/participant")
	v.SetDefault("PROGRAM_MEMBER_PORTAL_URL", "http://localhost:3000/members/login")
	v.SetDefault("PROGRAM_NOTIFY_NOMINATOR_ON_REJECT", false)
	v.SetDefault("PROGRAM_GUARD_REJECTED_ATTENDANCE", true)
	v.SetDefault("PROGRAM_CERTIFICATE_ISSUER", "Leadership Program")
	v.SetDefault("PROGRAM_PASSWORD_LENGTH", 12)

	v.SetDefault("NOTIFICATION_WORKERS", 2)
	v.SetDefault("NOTIFICATION_BUFFER_SIZE", 64)
	v.SetDefault("NOTIFICATION_MAX_RETRIES", 3)
	v.SetDefault("NOTIFICATION_RETRY_DELAY", "5s")

	v.SetDefault("DIPLOMAS_STORAGE_DIR", "./diplomas")
	v.SetDefault("DIPLOMAS_SIGNED_URL_SECRET", "dev_diplomas_secret")
	v.SetDefault("DIPLOMAS_SIGNED_URL_TTL", "24h")

	v.SetDefault("ENABLE_STATS_CACHE", false)
	v.SetDefault("STATS_CACHE_TTL", "1m")

	v.SetDefault("NOMINATION_LOCK_TTL", "30s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
