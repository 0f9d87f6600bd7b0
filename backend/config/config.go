package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
	StoreMySQL  = "mysql"
)

type Config struct {
	Running struct {
		Port           int      `mapstructure:"port"`
		AllowedOrigins []string `mapstructure:"allowedOrigins"`
	} `mapstructure:"running"`
	Store struct {
		Driver string `mapstructure:"driver"`
	} `mapstructure:"store"`
	Mongo struct {
		URI            string        `mapstructure:"uri"`
		Database       string        `mapstructure:"database"`
		ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	} `mapstructure:"mongo"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Redis struct {
		Addr        string        `mapstructure:"addr"`
		Password    string        `mapstructure:"password"`
		DB          int           `mapstructure:"db"`
		PresenceTTL time.Duration `mapstructure:"presenceTTL"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Auth struct {
		JWTSecret string        `mapstructure:"jwtSecret"`
		TokenTTL  time.Duration `mapstructure:"tokenTTL"`
		Google    struct {
			Verify       bool   `mapstructure:"verify"`
			ClientID     string `mapstructure:"clientId"`
			TokenInfoURL string `mapstructure:"tokenInfoURL"`
		} `mapstructure:"google"`
	} `mapstructure:"auth"`
	Relay struct {
		MaxParticipants    int           `mapstructure:"maxParticipants"`
		CheckpointInterval time.Duration `mapstructure:"checkpointInterval"`
		SendQueue          int           `mapstructure:"sendQueue"`
	} `mapstructure:"relay"`
	AI struct {
		APIKey  string `mapstructure:"apiKey"`
		BaseURL string `mapstructure:"baseURL"`
		Model   string `mapstructure:"model"`
	} `mapstructure:"ai"`
	Shutdown struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"shutdown"`
}

// legacyEnv maps config keys to the plain env names used by existing deployments.
var legacyEnv = map[string]string{
	"running.port":         "PORT",
	"mongo.uri":            "MONGO_URI",
	"mysql.dsn":            "MYSQL_DSN",
	"redis.addr":           "REDIS_ADDR",
	"redis.password":       "REDIS_PASSWORD",
	"kafka.brokers":        "KAFKA_BROKERS",
	"auth.jwtSecret":       "JWT_SECRET",
	"auth.google.clientId": "GOOGLE_CLIENT_ID",
	"ai.apiKey":            "OPENAI_API_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("running.port", 3000)
	v.SetDefault("running.allowedOrigins", []string{})
	v.SetDefault("store.driver", "")
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "codeweave")
	v.SetDefault("mongo.connectTimeout", 10*time.Second)
	v.SetDefault("mysql.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.presenceTTL", 10*time.Minute)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "codeweave.edits")
	v.SetDefault("auth.jwtSecret", "dev_secret_key_123")
	v.SetDefault("auth.tokenTTL", 24*time.Hour)
	v.SetDefault("auth.google.verify", false)
	v.SetDefault("auth.google.clientId", "")
	v.SetDefault("auth.google.tokenInfoURL", "https://oauth2.googleapis.com/tokeninfo")
	v.SetDefault("relay.maxParticipants", 5)
	v.SetDefault("relay.checkpointInterval", 5*time.Second)
	v.SetDefault("relay.sendQueue", 256)
	v.SetDefault("ai.apiKey", "")
	v.SetDefault("ai.baseURL", "https://api.openai.com")
	v.SetDefault("ai.model", "gpt-4o")
	v.SetDefault("shutdown.timeout", 10*time.Second)
}

// Load reads .env, then codeweaveConfig.yaml (optional), then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	v := viper.New()
	v.SetConfigName("codeweaveConfig")
	v.SetConfigType("yaml")
	// started from the repo root or from backend/
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	// KAFKA_BROKERS arrives as one comma separated string
	if len(c.Kafka.Brokers) == 1 && strings.Contains(c.Kafka.Brokers[0], ",") {
		c.Kafka.Brokers = strings.Split(c.Kafka.Brokers[0], ",")
	}
	if c.Store.Driver == "" {
		switch {
		case c.Mongo.URI != "":
			c.Store.Driver = StoreMongo
		case c.Mysql.DSN != "":
			c.Store.Driver = StoreMySQL
		default:
			c.Store.Driver = StoreMemory
		}
	}
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	c.Auth.JWTSecret = mask(c.Auth.JWTSecret)
	c.AI.APIKey = mask(c.AI.APIKey)
	c.Redis.Password = mask(c.Redis.Password)
	c.Mongo.URI = mask(c.Mongo.URI)
	c.Mysql.DSN = mask(c.Mysql.DSN)
	return c
}
