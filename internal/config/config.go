package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.emrpipe/emrpipe.yaml"
)

// ErrMissingSetting is returned when a required setting is empty or out of range.
var ErrMissingSetting = errors.New("missing required setting")

// Config is the top-level configuration.
type Config struct {
	Version   int             `yaml:"version" mapstructure:"version"`
	AWS       AWSConfig       `yaml:"aws" mapstructure:"aws"`
	S3        S3Config        `yaml:"s3" mapstructure:"s3"`
	EMR       EMRConfig       `yaml:"emr" mapstructure:"emr"`
	Step      StepConfig      `yaml:"step,omitempty" mapstructure:"step"`
	Assets    AssetsConfig    `yaml:"assets,omitempty" mapstructure:"assets"`
	Warehouse WarehouseConfig `yaml:"warehouse" mapstructure:"warehouse"`
	Logging   LogConfig       `yaml:"logging,omitempty" mapstructure:"logging"`
}

// AWSConfig defines credentials and region.
type AWSConfig struct {
	Region    string `yaml:"region" mapstructure:"region"`
	Profile   string `yaml:"profile,omitempty" mapstructure:"profile"`
	AccessKey string `yaml:"access_key,omitempty" mapstructure:"access_key"` // empty = default credential chain
	SecretKey string `yaml:"secret_key,omitempty" mapstructure:"secret_key"`
}

// S3Config defines the pipeline bucket layout.
type S3Config struct {
	Bucket         string `yaml:"bucket" mapstructure:"bucket"`
	ScriptsPrefix  string `yaml:"scripts_prefix" mapstructure:"scripts_prefix"`
	InputPrefix    string `yaml:"input_prefix" mapstructure:"input_prefix"`
	OutputPrefix   string `yaml:"output_prefix" mapstructure:"output_prefix"`
	InputLocalPath string `yaml:"input_local_path,omitempty" mapstructure:"input_local_path"`
}

// EMRConfig defines the cluster and polling settings.
type EMRConfig struct {
	ClusterName        string `yaml:"cluster_name" mapstructure:"cluster_name"`
	KeyPair            string `yaml:"key_pair,omitempty" mapstructure:"key_pair"`
	MasterType         string `yaml:"master_type" mapstructure:"master_type"`
	WorkerType         string `yaml:"worker_type" mapstructure:"worker_type"`
	InstanceCount      int    `yaml:"instance_count" mapstructure:"instance_count"`
	Release            string `yaml:"release" mapstructure:"release"` // emr-x.y.z release label or legacy AMI version
	LogDir             string `yaml:"log_dir" mapstructure:"log_dir"`
	JobFlowRole        string `yaml:"job_flow_role,omitempty" mapstructure:"job_flow_role"`
	ServiceRole        string `yaml:"service_role,omitempty" mapstructure:"service_role"`
	ClusterPollSeconds int    `yaml:"cluster_poll_seconds" mapstructure:"cluster_poll_seconds"`
	StepPollSeconds    int    `yaml:"step_poll_seconds" mapstructure:"step_poll_seconds"`
	StepName           string `yaml:"step_name" mapstructure:"step_name"`
	StepType           string `yaml:"step_type" mapstructure:"step_type"` // jar or streaming
	ActionOnFailure    string `yaml:"action_on_failure,omitempty" mapstructure:"action_on_failure"`
}

// StepConfig holds the remote locations used by job steps. Empty values
// are derived from the bucket layout.
type StepConfig struct {
	JarPath    string `yaml:"jar_path,omitempty" mapstructure:"jar_path"`
	JarClass   string `yaml:"jar_class,omitempty" mapstructure:"jar_class"`
	Mapper     string `yaml:"mapper,omitempty" mapstructure:"mapper"`
	Reducer    string `yaml:"reducer,omitempty" mapstructure:"reducer"`
	Input      string `yaml:"input,omitempty" mapstructure:"input"`
	Output     string `yaml:"output,omitempty" mapstructure:"output"`
	CopyScript string `yaml:"copy_script,omitempty" mapstructure:"copy_script"`
}

// AssetsConfig holds the local files uploaded before the cluster starts.
type AssetsConfig struct {
	Mapper     string `yaml:"mapper,omitempty" mapstructure:"mapper"`
	Jar        string `yaml:"jar,omitempty" mapstructure:"jar"`
	CopyScript string `yaml:"copy_script,omitempty" mapstructure:"copy_script"`
}

// WarehouseConfig defines the Redshift connection and load settings.
type WarehouseConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Database string `yaml:"database" mapstructure:"database"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	Table    string `yaml:"table" mapstructure:"table"`
	MaxError int    `yaml:"max_error" mapstructure:"max_error"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
	IAMRole  string `yaml:"iam_role,omitempty" mapstructure:"iam_role"` // COPY authorization; empty = access keys
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty" mapstructure:"level"`         // debug, info, warn, error
	Directory string `yaml:"directory,omitempty" mapstructure:"directory"` // default ~/.emrpipe/logs/
}

// Default returns the built-in settings.
func Default() *Config {
	cfg := &Config{
		Version: CurrentVersion,
		AWS: AWSConfig{
			Region: "eu-west-1",
		},
		S3: S3Config{
			Bucket:         "suppliers-emr",
			ScriptsPrefix:  "scripts/",
			InputPrefix:    "input/",
			OutputPrefix:   "output/",
			InputLocalPath: "./input/",
		},
		EMR: EMRConfig{
			ClusterName:        "suppliers-integration-emr",
			MasterType:         "m3.xlarge",
			WorkerType:         "m1.large",
			InstanceCount:      10,
			Release:            "3.3.1",
			LogDir:             "logs/",
			ClusterPollSeconds: 20,
			StepPollSeconds:    20,
			StepName:           "TestStep",
			StepType:           "jar",
		},
		Step: StepConfig{
			JarClass: "MapReduce",
			Reducer:  "NONE",
		},
		Assets: AssetsConfig{
			Mapper:     "mapreduce/mapper.py",
			Jar:        "mapreduce/mr.jar",
			CopyScript: "bash/copy_to_local.sh",
		},
		Warehouse: WarehouseConfig{
			Port:     5439,
			Database: "suppliers",
			Table:    "suppliers",
			MaxError: 10,
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the config file from the given path. A missing
// file yields the built-in defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks the settings every action relies on.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.AWS.Region) == "" {
		missing = append(missing, "aws.region")
	}
	if strings.TrimSpace(c.S3.Bucket) == "" {
		missing = append(missing, "s3.bucket")
	}
	if strings.TrimSpace(c.EMR.ClusterName) == "" {
		missing = append(missing, "emr.cluster_name")
	}
	if c.EMR.InstanceCount <= 0 {
		missing = append(missing, "emr.instance_count")
	}
	if c.EMR.ClusterPollSeconds <= 0 {
		missing = append(missing, "emr.cluster_poll_seconds")
	}
	if c.EMR.StepPollSeconds <= 0 {
		missing = append(missing, "emr.step_poll_seconds")
	}
	if (c.AWS.AccessKey == "") != (c.AWS.SecretKey == "") {
		missing = append(missing, "aws.access_key/aws.secret_key (both or neither)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.S3.ScriptsPrefix = prefix(c.S3.ScriptsPrefix)
	c.S3.InputPrefix = prefix(c.S3.InputPrefix)
	c.S3.OutputPrefix = prefix(c.S3.OutputPrefix)
	c.EMR.LogDir = prefix(c.EMR.LogDir)

	if c.EMR.ActionOnFailure == "" {
		c.EMR.ActionOnFailure = "CONTINUE"
	}
	if c.EMR.JobFlowRole == "" {
		c.EMR.JobFlowRole = "EMR_EC2_DefaultRole"
	}
	if c.EMR.ServiceRole == "" {
		c.EMR.ServiceRole = "EMR_DefaultRole"
	}
	if c.Warehouse.Port == 0 {
		c.Warehouse.Port = 5439
	}
	if c.Warehouse.SSLMode == "" {
		c.Warehouse.SSLMode = "require"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.emrpipe/logs/")
	}
}

// prefix normalizes a key prefix to "a/b/" form with no leading slash.
func prefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// BucketURI returns "s3://bucket/key".
func (c *Config) BucketURI(key string) string {
	return fmt.Sprintf("s3://%s/%s", c.S3.Bucket, strings.TrimPrefix(key, "/"))
}

// ScriptKey returns the object key of a file under the scripts prefix.
func (c *Config) ScriptKey(name string) string {
	return c.S3.ScriptsPrefix + filepath.Base(name)
}

// JarPath returns the configured jar location or the one under the scripts prefix.
func (c *Config) JarPath() string {
	if c.Step.JarPath != "" {
		return c.Step.JarPath
	}
	return c.BucketURI(c.ScriptKey(c.Assets.Jar))
}

// MapperPath returns the configured mapper location or the one under the scripts prefix.
func (c *Config) MapperPath() string {
	if c.Step.Mapper != "" {
		return c.Step.Mapper
	}
	return c.BucketURI(c.ScriptKey(c.Assets.Mapper))
}

// CopyScriptPath returns the configured copy-to-local script location.
func (c *Config) CopyScriptPath() string {
	if c.Step.CopyScript != "" {
		return c.Step.CopyScript
	}
	return c.BucketURI(c.ScriptKey(c.Assets.CopyScript))
}

// StepInput returns the input location of the map/reduce step.
func (c *Config) StepInput() string {
	if c.Step.Input != "" {
		return c.Step.Input
	}
	return c.BucketURI(c.S3.InputPrefix)
}

// StepOutput returns the output location of the map/reduce step.
func (c *Config) StepOutput() string {
	if c.Step.Output != "" {
		return c.Step.Output
	}
	return c.BucketURI(c.S3.OutputPrefix)
}

// LogURI returns the cluster log location.
func (c *Config) LogURI() string {
	return c.BucketURI(c.EMR.LogDir)
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	fields := []struct {
		name string
		val  *string
	}{
		{"aws access key", &c.AWS.AccessKey},
		{"aws secret key", &c.AWS.SecretKey},
		{"warehouse host", &c.Warehouse.Host},
		{"warehouse user", &c.Warehouse.User},
		{"warehouse password", &c.Warehouse.Password},
	}
	for _, f := range fields {
		v, err := resolveValue(*f.val, c.AWS.Region)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.val = v
	}
	return nil
}

// ResolveValue resolves secret references in a string value.
func ResolveValue(val string) (string, error) {
	return resolveValue(val, "")
}

// resolveValue resolves val; region selects the Secrets Manager region
// when set.
func resolveValue(val, region string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(region, ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
