package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string `yaml:"env" env-default:"local"`
	JWTSecret  string `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	BaseURL    string `yaml:"base_url" env-default:"http://localhost:8080"`
	Proxy      `yaml:"proxy"`
	Reconciler `yaml:"reconciler"`
	RabbitMQ   `yaml:"rabbitmq"`
	Postgres   `yaml:"postgres"`
	HTTPServer `yaml:"http_server"`
	Redis      `yaml:"redis"`
	SMTP       `yaml:"smtp"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type Postgres struct {
	Host     string `yaml:"host" env-default:"postgres"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD" env-required:"true"`
	DBName   string `yaml:"dbname" env-required:"true"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

type RabbitMQ struct {
	URL            string `yaml:"url" env-required:"true"`
	QueueName      string `yaml:"queue_name" env-default:"notifications_queue"`
	WorkerPoolSize int    `yaml:"worker_pool_size" env-default:"10"`
}

type Redis struct {
	Addr       string        `yaml:"addr" env-default:"redis:6379"`
	Db         int           `yaml:"db" env-default:"1"`
	DefaultTTL time.Duration `yaml:"default_ttl" env-default:"1m"`
}

// Proxy holds the Bright Data forward proxy credentials. Each outbound fetch
// appends a fresh random session id to the username so consecutive requests
// are not correlated upstream. Leaving the username empty disables the proxy.
type Proxy struct {
	Host     string `yaml:"host" env-default:"brd.superproxy.io"`
	Port     int    `yaml:"port" env-default:"33335"`
	Username string `yaml:"username" env:"BRIGHT_DATA_USERNAME"`
	Password string `yaml:"password" env:"BRIGHT_DATA_PASSWORD"`
}

type Reconciler struct {
	MaxDuration       time.Duration `yaml:"max_duration" env-default:"5m"`
	ItemTimeout       time.Duration `yaml:"item_timeout" env-default:"30s"`
	WorkerPoolSize    int           `yaml:"worker_pool_size" env-default:"5"`
	MaxScrapeFailures int           `yaml:"max_scrape_failures" env-default:"3"`
}

type SMTP struct {
	Host     string `yaml:"host" env-required:"true"`
	Port     int    `yaml:"port" env-default:"587"`
	User     string `yaml:"user" env:"SMTP_USER" env-required:"true"`
	Password string `yaml:"password" env:"SMTP_PASSWORD" env-required:"true"`
	From     string `yaml:"from" env-required:"true"`
}

func MustLoad(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", configPath)
	}

	return &cfg
}
