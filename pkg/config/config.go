// Package config loads process settings from the environment. Variables are
// prefixed with LMS_ and nested keys use underscores, e.g. LMS_DB_HOST.
package config

import (
	"fmt"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"os"
	"strings"
	"time"
)

type DB struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (d DB) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}

type Kafka struct {
	Enabled bool
	Brokers []string
	GroupID string
}

type Minio struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	PublicURL string
}

type Elastic struct {
	Enabled  bool
	Address  string
	Username string
	Password string
	Index    string
}

type SMTP struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Config struct {
	HTTPAddr        string
	PublicURL       string
	AllowedOrigins  []string
	JWTSecret       string
	ShutdownTimeout time.Duration
	DB              DB
	RedisURL        string
	CacheTTL        time.Duration
	Kafka           Kafka
	Minio           Minio
	Elastic         Elastic
	SMTP            SMTP
}

func defaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("public.url", "http://localhost:5176")
	v.SetDefault("cors.origins", "http://localhost:5176")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("shutdown.timeout", 10*time.Second)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "lms")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("redis.url", "")
	v.SetDefault("cache.ttl", time.Minute)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.group", "lms-progress")

	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key", "minioadmin")
	v.SetDefault("minio.secret_key", "minioadmin")
	v.SetDefault("minio.ssl", false)
	v.SetDefault("minio.bucket", "certificates")
	v.SetDefault("minio.public_url", "http://localhost:9000")

	v.SetDefault("es.enabled", false)
	v.SetDefault("es.address", "http://localhost:9200")
	v.SetDefault("es.username", "elastic")
	v.SetDefault("es.password", "")
	v.SetDefault("es.index", "courses")

	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "noreply@localhost")
}

// Load reads envFile when it exists, then the process environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, errors.Wrapf(err, "config: load %s", envFile)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "config: stat %s", envFile)
		}
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	defaults(v)
	v.SetEnvPrefix("LMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		HTTPAddr:        v.GetString("http.addr"),
		PublicURL:       v.GetString("public.url"),
		AllowedOrigins:  list(v.GetString("cors.origins")),
		JWTSecret:       v.GetString("jwt.secret"),
		ShutdownTimeout: v.GetDuration("shutdown.timeout"),
		DB: DB{
			Host:     v.GetString("db.host"),
			Port:     v.GetInt("db.port"),
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			Name:     v.GetString("db.name"),
			SSLMode:  v.GetString("db.sslmode"),
		},
		RedisURL: v.GetString("redis.url"),
		CacheTTL: v.GetDuration("cache.ttl"),
		Kafka: Kafka{
			Enabled: v.GetBool("kafka.enabled"),
			Brokers: list(v.GetString("kafka.brokers")),
			GroupID: v.GetString("kafka.group"),
		},
		Minio: Minio{
			Enabled:   v.GetBool("minio.enabled"),
			Endpoint:  v.GetString("minio.endpoint"),
			AccessKey: v.GetString("minio.access_key"),
			SecretKey: v.GetString("minio.secret_key"),
			UseSSL:    v.GetBool("minio.ssl"),
			Bucket:    v.GetString("minio.bucket"),
			PublicURL: v.GetString("minio.public_url"),
		},
		Elastic: Elastic{
			Enabled:  v.GetBool("es.enabled"),
			Address:  v.GetString("es.address"),
			Username: v.GetString("es.username"),
			Password: v.GetString("es.password"),
			Index:    v.GetString("es.index"),
		},
		SMTP: SMTP{
			Enabled:  v.GetBool("smtp.enabled"),
			Host:     v.GetString("smtp.host"),
			Port:     v.GetInt("smtp.port"),
			Username: v.GetString("smtp.username"),
			Password: v.GetString("smtp.password"),
			From:     v.GetString("smtp.from"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: LMS_JWT_SECRET is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("config: LMS_KAFKA_BROKERS is required when kafka is enabled")
	}
	if c.CacheTTL < 0 {
		return errors.New("config: LMS_CACHE_TTL must not be negative")
	}
	return nil
}

// list splits a comma separated value, dropping blanks.
func list(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
