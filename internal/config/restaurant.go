package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RestaurantConfig holds the floor tuning that staff may change without a redeploy.
type RestaurantConfig struct {
	Name              string        `mapstructure:"name"`
	TablePoolSize     int           `mapstructure:"tablePoolSize"`
	TabPollInterval   time.Duration `mapstructure:"tabPollInterval"`
	OrderPollInterval time.Duration `mapstructure:"orderPollInterval"`
	LedgerRetention   int           `mapstructure:"ledgerRetention"`
	MenuCacheTTL      time.Duration `mapstructure:"menuCacheTTL"`
	IdempotencyTTL    time.Duration `mapstructure:"idempotencyTTL"`
	OutboxInterval    time.Duration `mapstructure:"outboxInterval"`
	Timezone          string        `mapstructure:"timezone"`
	EstimatedTime     string        `mapstructure:"estimatedTime"`
	PickupAddress     string        `mapstructure:"pickupAddress"`
	SeedMenu          bool          `mapstructure:"seedMenu"`
}

func DefaultRestaurantConfig() RestaurantConfig {
	return RestaurantConfig{
		Name:              "Comanda",
		TablePoolSize:     20,
		TabPollInterval:   10 * time.Second,
		OrderPollInterval: 15 * time.Second,
		LedgerRetention:   2,
		MenuCacheTTL:      30 * time.Second,
		IdempotencyTTL:    10 * time.Minute,
		OutboxInterval:    30 * time.Second,
		Timezone:          "America/Sao_Paulo",
		EstimatedTime:     "30-45 minutos",
		PickupAddress:     "Retirada na Loja",
		SeedMenu:          true,
	}
}

// Location resolves the configured timezone, falling back to UTC.
func (c RestaurantConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

type RestaurantConfigHolder struct {
	current atomic.Value // holds RestaurantConfig
}

// NewStaticRestaurantHolder returns a holder that never reloads.
func NewStaticRestaurantHolder(cfg RestaurantConfig) *RestaurantConfigHolder {
	holder := &RestaurantConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewRestaurantConfigHolder(log *zap.Logger) (*RestaurantConfigHolder, error) {
	log = log.Named("restaurant.config")
	v := viper.New()

	v.SetConfigName("restaurant")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/comanda/config")
	v.AddConfigPath("/etc/comanda")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COMANDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRestaurantConfig()
	v.SetDefault("restaurant.name", defaults.Name)
	v.SetDefault("restaurant.tablePoolSize", defaults.TablePoolSize)
	v.SetDefault("restaurant.tabPollInterval", defaults.TabPollInterval)
	v.SetDefault("restaurant.orderPollInterval", defaults.OrderPollInterval)
	v.SetDefault("restaurant.ledgerRetention", defaults.LedgerRetention)
	v.SetDefault("restaurant.menuCacheTTL", defaults.MenuCacheTTL)
	v.SetDefault("restaurant.idempotencyTTL", defaults.IdempotencyTTL)
	v.SetDefault("restaurant.outboxInterval", defaults.OutboxInterval)
	v.SetDefault("restaurant.timezone", defaults.Timezone)
	v.SetDefault("restaurant.estimatedTime", defaults.EstimatedTime)
	v.SetDefault("restaurant.pickupAddress", defaults.PickupAddress)
	v.SetDefault("restaurant.seedMenu", defaults.SeedMenu)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg RestaurantConfig
	if err := v.UnmarshalKey("restaurant", &cfg); err != nil {
		return nil, err
	}
	if err := validateRestaurantConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticRestaurantHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated RestaurantConfig
		if err := v.UnmarshalKey("restaurant", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateRestaurantConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *RestaurantConfigHolder) Get() RestaurantConfig {
	if h == nil {
		return DefaultRestaurantConfig()
	}
	cfg, ok := h.current.Load().(RestaurantConfig)
	if !ok {
		return DefaultRestaurantConfig()
	}
	return cfg
}

func validateRestaurantConfig(cfg RestaurantConfig) error {
	if cfg.TablePoolSize <= 0 {
		return errors.New("restaurant.tablePoolSize must be positive")
	}
	if cfg.LedgerRetention <= 0 {
		return errors.New("restaurant.ledgerRetention must be positive")
	}
	if cfg.TabPollInterval <= 0 || cfg.OrderPollInterval <= 0 {
		return errors.New("restaurant poll intervals must be positive")
	}
	return nil
}
