package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	awspkg "github.com/emrpipe/emrpipe/internal/aws"
	"github.com/emrpipe/emrpipe/internal/config"
	"github.com/emrpipe/emrpipe/internal/logging"
	"github.com/emrpipe/emrpipe/internal/warehouse"
)

// env is the configuration and logger shared by the commands.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
}

// setup loads the config, applies --set overrides and --log-level, and
// opens the log file.
func setup() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Directory)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return &env{cfg: cfg, logger: logger}, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	params, err := config.ParseSettings(overrides)
	if err != nil {
		return nil, err
	}
	if err := config.Apply(cfg, params); err != nil {
		return nil, fmt.Errorf("applying --set: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (e *env) awsConfig(ctx context.Context) (aws.Config, error) {
	return awspkg.LoadConfig(ctx, awspkg.Settings{
		Profile:   e.cfg.AWS.Profile,
		Region:    e.cfg.AWS.Region,
		AccessKey: e.cfg.AWS.AccessKey,
		SecretKey: e.cfg.AWS.SecretKey,
	})
}

func (e *env) warehouseSettings() warehouse.Settings {
	w := e.cfg.Warehouse
	return warehouse.Settings{
		Host:     w.Host,
		Port:     w.Port,
		Database: w.Database,
		User:     w.User,
		Password: w.Password,
		SSLMode:  w.SSLMode,
	}
}

// copyCredentials authorizes COPY with the configured role or with the
// credentials the SDK resolved.
func (e *env) copyCredentials(awsCfg aws.Config) func(context.Context) (warehouse.Credentials, error) {
	return func(ctx context.Context) (warehouse.Credentials, error) {
		if role := e.cfg.Warehouse.IAMRole; role != "" {
			return warehouse.Credentials{IAMRole: role}, nil
		}
		if awsCfg.Credentials == nil {
			return warehouse.Credentials{}, fmt.Errorf("no AWS credentials configured")
		}
		c, err := awsCfg.Credentials.Retrieve(ctx)
		if err != nil {
			return warehouse.Credentials{}, err
		}
		return warehouse.Credentials{
			AccessKey:    c.AccessKeyID,
			SecretKey:    c.SecretAccessKey,
			SessionToken: c.SessionToken,
		}, nil
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
