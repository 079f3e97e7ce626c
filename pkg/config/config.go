package config

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	config       = viper.New()
	configHolder atomic.Value
	backend      = "consul"
	backendAddr  = "127.0.0.1:8500"
	backendPath  = "development" // e.g., app/<env>/<service_name>
	configType   = "yaml"
)

type Config struct {
	AppEnv       string `mapstructure:"APP_ENV"`
	AppName      string `mapstructure:"APP_NAME"`
	AppVersion   string `mapstructure:"APP_VERSION"`
	AppNamespace string `mapstructure:"APP_NAMESPACE"`
	TLS          struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"` // grpc | http
		Insecure bool   `mapstructure:"INSECURE"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string        `mapstructure:"TYPE"`
		Host           string        `mapstructure:"HOST"`
		Port           string        `mapstructure:"PORT"`
		DBNAME         string        `mapstructure:"DBNAME"`
		User           string        `mapstructure:"USER"`
		Password       string        `mapstructure:"PASSWORD"`
		SSLMode        string        `mapstructure:"SSLMODE"`
		Timezone       string        `mapstructure:"TIMEZONE"`
		Telemetry      bool          `mapstructure:"TELEMETRY"`
		Metrics        bool          `mapstructure:"METRICS"`
		AutoMigrate    bool          `mapstructure:"AUTO_MIGRATE"`
		SlowQuery      time.Duration `mapstructure:"SLOW_QUERY"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Consul struct {
		Addr        string `mapstructure:"ADDR"`
		ServiceHost string `mapstructure:"SERVICE_HOST"`
		ServicePort int    `mapstructure:"SERVICE_PORT"`
	} `mapstructure:"CONSUL"`
	Snowflake struct {
		Node int64 `mapstructure:"NODE"`
	} `mapstructure:"SNOWFLAKE"`
	Gateway struct {
		BaseURL         string        `mapstructure:"BASE_URL"`
		SubscriptionKey string        `mapstructure:"SUBSCRIPTION_KEY"`
		BusinessID      string        `mapstructure:"BUSINESS_ID"`
		CallbackURL     string        `mapstructure:"CALLBACK_URL"`
		Timeout         time.Duration `mapstructure:"TIMEOUT"`
	} `mapstructure:"GATEWAY"`
	Decision struct {
		WebhookURL string        `mapstructure:"WEBHOOK_URL"`
		ChannelID  string        `mapstructure:"CHANNEL_ID"`
		SigningKey string        `mapstructure:"SIGNING_KEY"`
		TokenTTL   time.Duration `mapstructure:"TOKEN_TTL"`
	} `mapstructure:"DECISION"`
	Notification struct {
		RelayURL string `mapstructure:"RELAY_URL"`
		Queue    string `mapstructure:"QUEUE"`
		MaxRetry int    `mapstructure:"MAX_RETRY"`
	} `mapstructure:"NOTIFICATION"`
	Scheduler struct {
		InstanceID     string        `mapstructure:"INSTANCE_ID"`
		GraceDelay     time.Duration `mapstructure:"GRACE_DELAY"`
		ClaimTimeout   time.Duration `mapstructure:"CLAIM_TIMEOUT"`
		RetryDelay     time.Duration `mapstructure:"RETRY_DELAY"`
		MaxAttempts    int           `mapstructure:"MAX_ATTEMPTS"`
		ResyncInterval time.Duration `mapstructure:"RESYNC_INTERVAL"`
	} `mapstructure:"SCHEDULER"`
	Fees struct {
		PlatformPercent int64  `mapstructure:"PLATFORM_PERCENT"`
		PlatformFeeExpr string `mapstructure:"PLATFORM_FEE_EXPR"`
		Currency        string `mapstructure:"CURRENCY"`
	} `mapstructure:"FEES"`
	Consultation struct {
		ReminderDelay   time.Duration `mapstructure:"REMINDER_DELAY"`
		DefaultExpiry   time.Duration `mapstructure:"DEFAULT_EXPIRY"`
		FrontendBaseURL string        `mapstructure:"FRONTEND_BASE_URL"`
	} `mapstructure:"CONSULTATION"`
	Messaging struct {
		UnseenDelay time.Duration `mapstructure:"UNSEEN_DELAY"`
	} `mapstructure:"MESSAGING"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))
var RemoteModule = fx.Module("remote.config", fx.Provide(LoadRemote))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "settlement")
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", "9090")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("SNOWFLAKE.NODE", 1)
	v.SetDefault("GATEWAY.TIMEOUT", 30*time.Second)
	v.SetDefault("DECISION.TOKEN_TTL", 72*time.Hour)
	v.SetDefault("NOTIFICATION.QUEUE", "default")
	v.SetDefault("NOTIFICATION.MAX_RETRY", 5)
	v.SetDefault("SCHEDULER.GRACE_DELAY", 10*time.Second)
	v.SetDefault("SCHEDULER.CLAIM_TIMEOUT", 5*time.Minute)
	v.SetDefault("SCHEDULER.RETRY_DELAY", 30*time.Second)
	v.SetDefault("SCHEDULER.MAX_ATTEMPTS", 5)
	v.SetDefault("SCHEDULER.RESYNC_INTERVAL", time.Minute)
	v.SetDefault("FEES.PLATFORM_PERCENT", 30)
	v.SetDefault("FEES.CURRENCY", "NGN")
	v.SetDefault("CONSULTATION.REMINDER_DELAY", 30*time.Minute)
	v.SetDefault("CONSULTATION.DEFAULT_EXPIRY", time.Hour)
	v.SetDefault("MESSAGING.UNSEEN_DELAY", time.Minute)
}

func LoadConfig(p Params) *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()
	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		if err := applySecrets(context.Background(), p.Vault, &cfg); err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
	}

	return &cfg
}

func LoadRemote(p Params) *Config {
	if p.Vault == nil {
		zap.L().Error("vault can't provide")
		os.Exit(1)
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		backend = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok {
		backendAddr = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok {
		backendPath = v
	}

	setDefaults(config)
	config.SetConfigType(configType)
	if err := config.AddRemoteProvider(backend, backendAddr, backendPath); err != nil {
		os.Exit(1)
	}

	if err := config.ReadRemoteConfig(); err != nil {
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}

	if err := applySecrets(context.Background(), p.Vault, &cfg); err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		os.Exit(1)
	}
	configHolder.Store(&cfg)

	go func() {
		for {
			time.Sleep(time.Second * 5) // delay after each request

			if err := config.WatchRemoteConfig(); err != nil {
				zap.L().Error("unable to read remote config", zap.Error(err))
				continue
			}

			var newcfg Config
			if err := config.Unmarshal(&newcfg); err != nil {
				zap.L().Error("unable to unmarshal remote config", zap.Error(err))
				continue
			}
			if err := applySecrets(context.Background(), p.Vault, &newcfg); err != nil {
				zap.L().Warn("keeping previous secrets after refresh failure", zap.Error(err))
				continue
			}
			configHolder.Store(&newcfg)
		}
	}()

	return &cfg
}

// Current returns the latest remote configuration, or nil when the process
// was started with the file based loader.
func Current() *Config {
	if v, ok := configHolder.Load().(*Config); ok {
		return v
	}
	return nil
}

func applySecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		return err
	}
	zap.L().Info("Success Get Secret")

	get := func(key, fallback string) string {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			return val
		}
		return fallback
	}

	cfg.Database.User = get("postgres_user", cfg.Database.User)
	cfg.Database.Password = get("postgres_password", cfg.Database.Password)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.Flagsmith.ApiKey = get("flagsmith_api_key", cfg.Flagsmith.ApiKey)
	cfg.Gateway.SubscriptionKey = get("gateway_subscription_key", cfg.Gateway.SubscriptionKey)
	cfg.Decision.SigningKey = get("decision_signing_key", cfg.Decision.SigningKey)
	return nil
}
