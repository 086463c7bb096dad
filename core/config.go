package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug                    bool
		TestMode                 bool
		DemoMode                 bool
		RequireEmailConfirmation bool

		Env             string
		Build           string
		AppName         string
		SecretKey       string
		WorkDir         string
		FrontendBaseURL string
		RollbarToken    string
		SendgridApiKey  string
		SignUpRole      string

		PasswordResetTimeoutDelta     time.Duration
		EmailConfirmationTimeoutDelta time.Duration

		defaultFromEmail string

		School   SchoolConfig
		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Kafka    KafkaConfig
	}

	// SchoolConfig identifies the tenant this process serves.
	SchoolConfig struct {
		ID   string
		Name string
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		SecureCookies             bool
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		SessionLoadTimeout        time.Duration
		SessionCheckInterval      time.Duration
		ClientIdleTimeout         time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		URL string
	}

	KafkaConfig struct {
		Brokers     []string
		TopicPrefix string
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// NewConfig loads the configuration from (in order of precedence) environment variables,
// the config/.env.<env> file and defaults.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("demoMode", false)
	v.SetDefault("requireEmailConfirmation", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Masomo")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:8000")
	v.SetDefault("defaultFromEmail", "Masomo <noreply@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("signUpRole", "STUDENT")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("emailConfirmationTimeoutDelta", 7*24*time.Hour)

	v.SetDefault("school.id", "00000000-0000-0000-0000-000000000001")
	v.SetDefault("school.name", "Masomo Demo School")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.secureCookies", false)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.sessionLoadTimeout", 5*time.Second)
	v.SetDefault("server.sessionCheckInterval", time.Minute)
	v.SetDefault("server.clientIdleTimeout", 30*time.Minute)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "masomo")
	v.SetDefault("database.user", "masomo")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.url", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topicPrefix", "masomo")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Debug:                         v.GetBool("debug"),
		TestMode:                      v.GetBool("testMode"),
		DemoMode:                      v.GetBool("demoMode"),
		RequireEmailConfirmation:      v.GetBool("requireEmailConfirmation"),
		Env:                           env,
		Build:                         v.GetString("build"),
		AppName:                       v.GetString("appName"),
		SecretKey:                     v.GetString("secretKey"),
		WorkDir:                       wd,
		FrontendBaseURL:               v.GetString("frontendBaseURL"),
		RollbarToken:                  v.GetString("rollbarToken"),
		SendgridApiKey:                v.GetString("sendgridApiKey"),
		SignUpRole:                    v.GetString("signUpRole"),
		PasswordResetTimeoutDelta:     v.GetDuration("passwordResetTimeoutDelta"),
		EmailConfirmationTimeoutDelta: v.GetDuration("emailConfirmationTimeoutDelta"),
		defaultFromEmail:              v.GetString("defaultFromEmail"),
		School: SchoolConfig{
			ID:   v.GetString("school.id"),
			Name: v.GetString("school.name"),
		},
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			SecureCookies:             v.GetBool("server.secureCookies"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			SessionLoadTimeout:        v.GetDuration("server.sessionLoadTimeout"),
			SessionCheckInterval:      v.GetDuration("server.sessionCheckInterval"),
			ClientIdleTimeout:         v.GetDuration("server.clientIdleTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			URL: v.GetString("redis.url"),
		},
		Kafka: KafkaConfig{
			Brokers:     v.GetStringSlice("kafka.brokers"),
			TopicPrefix: v.GetString("kafka.topicPrefix"),
		},
	}
}

// NewTestConfig returns a Config suitable for unit tests: no env lookups, fast expirations.
func NewTestConfig() *Config {
	return &Config{
		Debug:                         true,
		TestMode:                      true,
		RequireEmailConfirmation:      true,
		Env:                           "TEST",
		Build:                         "test",
		AppName:                       "Masomo",
		SecretKey:                     "secret",
		FrontendBaseURL:               "http://localhost:8000",
		SignUpRole:                    "STUDENT",
		PasswordResetTimeoutDelta:     3 * 24 * time.Hour,
		EmailConfirmationTimeoutDelta: 7 * 24 * time.Hour,
		defaultFromEmail:              "Masomo <noreply@localhost>",
		School:                        SchoolConfig{ID: "00000000-0000-0000-0000-000000000001", Name: "Test School"},
		Server: ServerConfig{
			Host:                      "localhost",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			SessionLoadTimeout:        2 * time.Second,
			SessionCheckInterval:      time.Minute,
			ClientIdleTimeout:         time.Minute,
		},
	}
}
