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
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		RollbarToken     string
		SendgridApiKey   string
		DefaultFromEmail mail.Address

		Server   ServerConfig
		Database DatabaseConfig
		Fees     FeesConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
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
		InMemory      bool
	}

	FeesConfig struct {
		// Location used to compute day boundaries in reports.
		Location           *time.Location
		MaxPaymentAmount   decimal.Decimal
		AllowPastDueDate   bool
		OverdueRefreshSpec string
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}

// NewConfig reads the configuration from defaults, `config/.env.<env>` and the environment,
// in that order of precedence (lowest first).
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Masomo")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("defaultFromEmail", "Masomo <noreply@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "masomo")
	v.SetDefault("dbUser", "masomo")
	v.SetDefault("dbPassword", "")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)
	v.SetDefault("dbInMemory", false)

	v.SetDefault("feesTimezone", "UTC")
	v.SetDefault("feesMaxPaymentAmount", "10000000")
	v.SetDefault("feesAllowPastDueDate", false)
	v.SetDefault("feesOverdueRefreshSpec", "@every 1h")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:            env,
		Build:          v.GetString("build"),
		Debug:          v.GetBool("debug"),
		TestMode:       v.GetBool("testMode"),
		AppName:        v.GetString("appName"),
		SecretKey:      v.GetString("secretKey"),
		RollbarToken:   v.GetString("rollbarToken"),
		SendgridApiKey: v.GetString("sendgridApiKey"),
		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			Address:                   v.GetString("serverAddress"),
			DebugHost:                 v.GetString("serverDebugHost"),
			ShutdownTimeout:           v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
			InMemory:      v.GetBool("dbInMemory"),
		},
		Fees: FeesConfig{
			AllowPastDueDate:   v.GetBool("feesAllowPastDueDate"),
			OverdueRefreshSpec: v.GetString("feesOverdueRefreshSpec"),
		},
	}

	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}
	conf.DefaultFromEmail = *from

	loc, err := time.LoadLocation(v.GetString("feesTimezone"))
	if err != nil {
		log.Fatalf("config.feesTimezone: %v", err)
	}
	conf.Fees.Location = loc

	maxAmount, err := decimal.NewFromString(v.GetString("feesMaxPaymentAmount"))
	if err != nil {
		log.Fatalf("config.feesMaxPaymentAmount: %v", err)
	}
	conf.Fees.MaxPaymentAmount = maxAmount

	return conf
}

// NewTestConfig returns a Config suitable for tests: no file or environment lookups.
func NewTestConfig() *Config {
	return &Config{
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		AppName:          "Masomo",
		SecretKey:        "secret",
		DefaultFromEmail: mail.Address{Name: "Masomo", Address: "noreply@localhost"},
		Server: ServerConfig{
			Host:                      "localhost",
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Database: DatabaseConfig{InMemory: true},
		Fees: FeesConfig{
			Location:           time.UTC,
			MaxPaymentAmount:   decimal.NewFromInt(10000000),
			OverdueRefreshSpec: "@every 1h",
		},
	}
}
