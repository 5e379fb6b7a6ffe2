package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultChainID     = "mainnet"
	DefaultBatchSize   = 50
	DefaultMaxKeys     = 100
	DefaultMaxAttempts = 10
	DefaultFeeUPOKT    = 10000
)

// GlobalFlags are the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

type Settings struct {
	ChainID          string
	BatchSize        int
	MaxKeysPerFile   int
	MaxAttempts      int
	Timeout          time.Duration
	Retries          int
	RPCRateLimit     float64
	OutputMode       string
	InputDir         string
	OutputDir        string
	OldKeysFile      string
	NewKeysFile      string
	StakeKeysFile    string
	UnstakeKeysFile  string
	StakeAmount      string
	StakeChains      []string
	FeeUPOKT         int64
	Memo             string
	RunStorePath     string
	RunLockPath      string
	MetricsTextfile  string
	LogLevel         string
	LogFormat        string
	VerifyConcurrent int
}

type fileConfig struct {
	ChainID     string `yaml:"chain_id"`
	BatchSize   *int   `yaml:"batch_size"`
	MaxKeys     *int   `yaml:"max_keys_per_file"`
	MaxAttempts *int   `yaml:"max_attempts"`
	Output      string `yaml:"output"`
	RPC         struct {
		Timeout   string   `yaml:"timeout"`
		Retries   *int     `yaml:"retries"`
		RateLimit *float64 `yaml:"rate_limit"`
	} `yaml:"rpc"`
	Files struct {
		InputDir    string `yaml:"input_dir"`
		OutputDir   string `yaml:"output_dir"`
		OldKeys     string `yaml:"old_keys"`
		NewKeys     string `yaml:"new_keys"`
		StakeKeys   string `yaml:"stake_keys"`
		UnstakeKeys string `yaml:"unstake_keys"`
	} `yaml:"files"`
	Stake struct {
		Amount string   `yaml:"amount"`
		Chains []string `yaml:"chains"`
	} `yaml:"stake"`
	Tx struct {
		Fee  *int64 `yaml:"fee"`
		Memo string `yaml:"memo"`
	} `yaml:"tx"`
	History struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"history"`
	Metrics struct {
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`
	Verify struct {
		Concurrency *int `yaml:"concurrency"`
	} `yaml:"verify"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	applyFlags(flags, &settings)

	if err := validate(&settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	storePath, lockPath, err := defaultStorePaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		ChainID:          DefaultChainID,
		BatchSize:        DefaultBatchSize,
		MaxKeysPerFile:   DefaultMaxKeys,
		MaxAttempts:      DefaultMaxAttempts,
		Timeout:          30 * time.Second,
		Retries:          0,
		OutputMode:       "plain",
		InputDir:         "input",
		OutputDir:        "output",
		OldKeysFile:      "old-app-private-keys.csv",
		NewKeysFile:      "new-app-private-keys.csv",
		StakeKeysFile:    "stake-app-private-keys.csv",
		UnstakeKeysFile:  "unstake-app-private-keys.csv",
		FeeUPOKT:         DefaultFeeUPOKT,
		RunStorePath:     storePath,
		RunLockPath:      lockPath,
		LogLevel:         "info",
		LogFormat:        "text",
		VerifyConcurrent: 10,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "pokt-rotate", "config.yaml"), nil
}

func defaultStorePaths() (string, string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	dir := filepath.Join(base, "pokt-rotate")
	return filepath.Join(dir, "runs.db"), filepath.Join(dir, "runs.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.ChainID != "" {
		settings.ChainID = cfg.ChainID
	}
	if cfg.BatchSize != nil {
		settings.BatchSize = *cfg.BatchSize
	}
	if cfg.MaxKeys != nil {
		settings.MaxKeysPerFile = *cfg.MaxKeys
	}
	if cfg.MaxAttempts != nil {
		settings.MaxAttempts = *cfg.MaxAttempts
	}
	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.RPC.Timeout != "" {
		d, err := time.ParseDuration(cfg.RPC.Timeout)
		if err != nil {
			return fmt.Errorf("config rpc.timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.RPC.Retries != nil {
		settings.Retries = *cfg.RPC.Retries
	}
	if cfg.RPC.RateLimit != nil {
		settings.RPCRateLimit = *cfg.RPC.RateLimit
	}
	if cfg.Files.InputDir != "" {
		settings.InputDir = cfg.Files.InputDir
	}
	if cfg.Files.OutputDir != "" {
		settings.OutputDir = cfg.Files.OutputDir
	}
	if cfg.Files.OldKeys != "" {
		settings.OldKeysFile = cfg.Files.OldKeys
	}
	if cfg.Files.NewKeys != "" {
		settings.NewKeysFile = cfg.Files.NewKeys
	}
	if cfg.Files.StakeKeys != "" {
		settings.StakeKeysFile = cfg.Files.StakeKeys
	}
	if cfg.Files.UnstakeKeys != "" {
		settings.UnstakeKeysFile = cfg.Files.UnstakeKeys
	}
	if cfg.Stake.Amount != "" {
		settings.StakeAmount = cfg.Stake.Amount
	}
	if len(cfg.Stake.Chains) > 0 {
		settings.StakeChains = cfg.Stake.Chains
	}
	if cfg.Tx.Fee != nil {
		settings.FeeUPOKT = *cfg.Tx.Fee
	}
	if cfg.Tx.Memo != "" {
		settings.Memo = cfg.Tx.Memo
	}
	if cfg.History.Path != "" {
		settings.RunStorePath = cfg.History.Path
	}
	if cfg.History.LockPath != "" {
		settings.RunLockPath = cfg.History.LockPath
	}
	if cfg.Metrics.Textfile != "" {
		settings.MetricsTextfile = cfg.Metrics.Textfile
	}
	if cfg.Verify.Concurrency != nil {
		settings.VerifyConcurrent = *cfg.Verify.Concurrency
	}
	if cfg.Log.Level != "" {
		settings.LogLevel = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		settings.LogFormat = cfg.Log.Format
	}
	return nil
}

func applyEnv(settings *Settings) error {
	// chainId is the variable name older deployments already export.
	if v := os.Getenv("chainId"); v != "" {
		settings.ChainID = v
	}
	if v := os.Getenv("POKT_ROTATE_CHAIN_ID"); v != "" {
		settings.ChainID = v
	}
	if err := envInt("POKT_ROTATE_BATCH_SIZE", &settings.BatchSize); err != nil {
		return err
	}
	if err := envInt("POKT_ROTATE_MAX_KEYS", &settings.MaxKeysPerFile); err != nil {
		return err
	}
	if err := envInt("POKT_ROTATE_MAX_ATTEMPTS", &settings.MaxAttempts); err != nil {
		return err
	}
	if err := envInt("POKT_ROTATE_RETRIES", &settings.Retries); err != nil {
		return err
	}
	if v := os.Getenv("POKT_ROTATE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse POKT_ROTATE_TIMEOUT: %w", err)
		}
		settings.Timeout = d
	}
	if v := os.Getenv("POKT_ROTATE_RPC_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse POKT_ROTATE_RPC_RATE_LIMIT: %w", err)
		}
		settings.RPCRateLimit = f
	}
	if v := os.Getenv("POKT_ROTATE_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("POKT_ROTATE_INPUT_DIR"); v != "" {
		settings.InputDir = v
	}
	if v := os.Getenv("POKT_ROTATE_OUTPUT_DIR"); v != "" {
		settings.OutputDir = v
	}
	if v := os.Getenv("POKT_ROTATE_STAKE_AMOUNT"); v != "" {
		settings.StakeAmount = v
	}
	if v := os.Getenv("POKT_ROTATE_STAKE_CHAINS"); v != "" {
		settings.StakeChains = splitList(v)
	}
	if v := os.Getenv("POKT_ROTATE_FEE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse POKT_ROTATE_FEE: %w", err)
		}
		settings.FeeUPOKT = n
	}
	if v := os.Getenv("POKT_ROTATE_HISTORY_PATH"); v != "" {
		settings.RunStorePath = v
	}
	if v := os.Getenv("POKT_ROTATE_HISTORY_LOCK_PATH"); v != "" {
		settings.RunLockPath = v
	}
	if v := os.Getenv("POKT_ROTATE_METRICS_TEXTFILE"); v != "" {
		settings.MetricsTextfile = v
	}
	if v := os.Getenv("POKT_ROTATE_LOG_LEVEL"); v != "" {
		settings.LogLevel = v
	}
	if v := os.Getenv("POKT_ROTATE_LOG_FORMAT"); v != "" {
		settings.LogFormat = v
	}
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) {
	if strings.TrimSpace(flags.LogLevel) != "" {
		settings.LogLevel = flags.LogLevel
	}
	if strings.TrimSpace(flags.LogFormat) != "" {
		settings.LogFormat = flags.LogFormat
	}
}

func validate(settings *Settings) error {
	if strings.TrimSpace(settings.ChainID) == "" {
		return fmt.Errorf("chain id must not be empty")
	}
	if settings.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", settings.BatchSize)
	}
	if settings.MaxKeysPerFile <= 0 {
		return fmt.Errorf("max keys per file must be positive, got %d", settings.MaxKeysPerFile)
	}
	if settings.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", settings.MaxAttempts)
	}
	if settings.FeeUPOKT < 0 {
		return fmt.Errorf("fee must not be negative")
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.VerifyConcurrent <= 0 {
		settings.VerifyConcurrent = 10
	}
	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// KeyPath joins a key file name onto the input directory unless it is
// already absolute.
func (s Settings) KeyPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.InputDir, name)
}
