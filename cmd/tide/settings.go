package main

import (
	"fmt"
	"strings"

	"github.com/RezaEskandarii/tide/types/config"
	"github.com/spf13/viper"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("delimiter", config.DefaultDelimiter)
	v.SetDefault("containers_prefix", config.DefaultContainersPrefix)

	v.SetDefault("storage.driver", config.DefaultStorageDriver.String())
	v.SetDefault("leader.driver", config.DefaultLeaderDriver.String())
	v.SetDefault("leader.static", false)
	v.SetDefault("leader.lease_ttl", config.DefaultLeaderLeaseTTL)

	v.SetDefault("lock_timeout", config.DefaultLockTimeout)
	v.SetDefault("drain_poll_interval", config.DefaultDrainPollInterval)
	v.SetDefault("firing_workers", config.DefaultFiringWorkers)

	v.SetDefault("log.level", config.DefaultLogLevel)
	v.SetDefault("log.json", false)

	v.SetDefault("rabbitmq.exchange", config.DefaultExchange)
	v.SetDefault("rabbitmq.queue", config.DefaultCommandQueue)
}

// loadViper reads TIDE_ environment variables and, when path is set, a config file.
func loadViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("TIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return v, nil
}

// buildConfig turns viper settings into a validated TideConfig.
func buildConfig(v *viper.Viper) (*config.TideConfig, error) {
	var opts []config.Option

	storage, ok := config.ParseStorageDriver(v.GetString("storage.driver"))
	if !ok {
		return nil, fmt.Errorf("unknown storage driver %q", v.GetString("storage.driver"))
	}
	switch storage {
	case config.Postgres:
		opts = append(opts, config.WithPostgresConfig(config.PostgresConfig{ConnectionUrl: v.GetString("storage.postgres_url")}))
	case config.Redis:
		opts = append(opts, config.WithRedisConfig(config.RedisConfig{ConnectionUrl: v.GetString("storage.redis_url")}))
	case config.Consul:
		opts = append(opts, config.WithConsulConfig(config.ConsulConfig{Address: v.GetString("storage.consul_address")}))
	case config.Memory:
		opts = append(opts, config.WithMemoryStore())
	}

	leader, ok := config.ParseLeaderDriver(v.GetString("leader.driver"))
	if !ok {
		return nil, fmt.Errorf("unknown leader driver %q", v.GetString("leader.driver"))
	}
	if leader == config.StaticLeader {
		opts = append(opts, config.WithStaticLeader(v.GetBool("leader.static")))
	} else {
		opts = append(opts, config.WithLeaderDriver(leader))
	}

	if nodeID := v.GetString("node_id"); nodeID != "" {
		opts = append(opts, config.WithNodeID(nodeID))
	}

	opts = append(opts,
		config.WithDelimiter(v.GetString("delimiter")),
		config.WithContainersPrefix(v.GetString("containers_prefix")),
		config.WithLockTimeout(v.GetDuration("lock_timeout")),
		config.WithDrainPollInterval(v.GetDuration("drain_poll_interval")),
		config.WithFiringWorkers(v.GetInt("firing_workers")),
		config.WithLeaderLeaseTTL(v.GetDuration("leader.lease_ttl")),
		config.WithLogging(v.GetString("log.level"), v.GetBool("log.json")),
	)

	if url := v.GetString("rabbitmq.url"); url != "" {
		opts = append(opts, config.WithRabbitMQConfig(config.RabbitMQConfig{
			URL:        url,
			Exchange:   v.GetString("rabbitmq.exchange"),
			Queue:      v.GetString("rabbitmq.queue"),
			RoutingKey: v.GetString("rabbitmq.routing_key"),
		}))
	}

	cfg, err := config.NewTideConfig(v.GetString("cluster_id"), opts...)
	if err != nil {
		return nil, err
	}

	// the leader driver may need a connection the storage driver did not configure
	if url := v.GetString("storage.postgres_url"); url != "" {
		cfg.PostgresConfig.ConnectionUrl = url
	}
	if url := v.GetString("storage.redis_url"); url != "" {
		cfg.RedisConfig.ConnectionUrl = url
	}
	return cfg, nil
}
