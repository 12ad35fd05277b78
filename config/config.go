// Package config loads the node configuration from YAML and STATECO_
// environment variables.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/viper"

	"state-connector/chain"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "config/config.yaml"

type Config struct {
	Server   ServerConfig           `mapstructure:"server"`
	Log      LogConfig              `mapstructure:"log"`
	LevelDB  LevelDBConfig          `mapstructure:"leveldb"`
	Redis    RedisConfig            `mapstructure:"redis"`
	Contract ContractConfig         `mapstructure:"contract"`
	Run      RunConfig              `mapstructure:"run"`
	Chains   map[string]ChainConfig `mapstructure:"chains"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
	// ExitOnCompletion stops the server after the first run and exits with
	// its status, for deployments where a supervisor restarts the process.
	ExitOnCompletion bool `mapstructure:"exit_on_completion"`
}

type LogConfig struct {
	AppLogFile string `mapstructure:"app_log_file"`
	Level      string `mapstructure:"level"`
}

type LevelDBConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig enables the shared claims guard when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type ContractConfig struct {
	RPCURL      string        `mapstructure:"rpc_url"`
	Address     string        `mapstructure:"address"`
	PrivateKey  string        `mapstructure:"private_key"`
	ChainID     int64         `mapstructure:"chain_id"`
	GasPrice    int64         `mapstructure:"gas_price"`
	GasLimit    uint64        `mapstructure:"gas_limit"`
	ReceiptPoll time.Duration `mapstructure:"receipt_poll"`
}

type RunConfig struct {
	Watchdog               time.Duration `mapstructure:"watchdog"`
	Backoff                time.Duration `mapstructure:"backoff"`
	ContinueDelay          time.Duration `mapstructure:"continue_delay"`
	MaxLeavesPerSubmission int           `mapstructure:"max_leaves_per_submission"`
}

// ChainConfig is the connection of one chain plus overrides of its
// catalogue entry.
type ChainConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// Account restricts an XRPL scan to payments of one account.
	Account       string `mapstructure:"account"`
	MinAmount     string `mapstructure:"min_amount"`
	Confirmations uint64 `mapstructure:"confirmations"`
	PointerMemos  bool   `mapstructure:"pointer_memos"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.exit_on_completion", false)
	v.SetDefault("log.app_log_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("leveldb.path", "data/journal")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "stateco:claims:")
	v.SetDefault("contract.rpc_url", "")
	v.SetDefault("contract.address", "")
	v.SetDefault("contract.private_key", "")
	v.SetDefault("contract.chain_id", 0)
	v.SetDefault("contract.gas_price", 225_000_000_000)
	v.SetDefault("contract.gas_limit", 8_000_000)
	v.SetDefault("contract.receipt_poll", 2*time.Second)
	v.SetDefault("run.watchdog", 10*time.Minute)
	v.SetDefault("run.backoff", chain.DefaultBackoff)
	v.SetDefault("run.continue_delay", 5*time.Second)
	v.SetDefault("run.max_leaves_per_submission", 0)
}

// Load reads path and overlays the environment, so that
// STATECO_CONTRACT_PRIVATE_KEY replaces contract.private_key.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("STATECO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// EnabledChains lists the enabled chains in catalogue order.
func (c *Config) EnabledChains() []string {
	var out []string
	for _, name := range chain.Names() {
		if cc, ok := c.Chains[name]; ok && cc.Enabled {
			out = append(out, name)
		}
	}
	return out
}

// Spec applies the overrides of cc to the catalogue entry of name.
func (cc ChainConfig) Spec(name string) (chain.Spec, error) {
	spec, err := chain.Lookup(name)
	if err != nil {
		return chain.Spec{}, err
	}
	if cc.Confirmations > 0 {
		switch spec.Variant.(type) {
		case chain.LedgerIndexed:
			spec.Variant = chain.LedgerIndexed{Confirmations: cc.Confirmations}
		case chain.BlockIndexed:
			spec.Variant = chain.BlockIndexed{Confirmations: cc.Confirmations}
		}
	}
	if cc.MinAmount != "" {
		amount, ok := new(big.Int).SetString(cc.MinAmount, 10)
		if !ok || amount.Sign() < 0 {
			return chain.Spec{}, fmt.Errorf("chain %s: invalid min_amount %q", name, cc.MinAmount)
		}
		spec.MinAmount = amount
	}
	spec.PointerMemos = spec.PointerMemos || cc.PointerMemos
	return spec, nil
}
