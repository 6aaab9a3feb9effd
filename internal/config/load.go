package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Variables that steer loading itself rather than the service.
const (
	EnvFilePath        = "ENV_FILE_PATH"
	EnvConfigFile      = "AUTHCORE_CONFIG_FILE"
	EnvSecretID        = "AWS_SECRETS_MANAGER_SECRET_ID"
	EnvSecretRegion    = "AWS_SECRETS_MANAGER_REGION"
	EnvSecretStage     = "AWS_SECRETS_MANAGER_VERSION_STAGE"
	EnvSecretOverwrite = "AWS_SECRETS_MANAGER_OVERWRITE"
)

// SecretsClient is the subset of the Secrets Manager API the loader uses.
type SecretsClient interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Loader resolves a Service configuration. The zero value reads the process
// environment and builds a Secrets Manager client on demand.
type Loader struct {
	// Environ replaces os.Environ when set.
	Environ []string
	// Secrets replaces the AWS client when set.
	Secrets SecretsClient
	Logger  *log.Logger
}

// Load layers Defaults, the YAML file named by AUTHCORE_CONFIG_FILE, and the
// environment. The environment is the process environment plus, for keys it
// does not already set, the .env file and the Secrets Manager secret.
func (l Loader) Load(ctx context.Context) (Service, error) {
	environ := l.Environ
	if environ == nil {
		environ = os.Environ()
	}
	vars := toMap(environ)

	if err := l.mergeDotEnv(vars); err != nil {
		return Service{}, err
	}
	if err := l.mergeSecrets(ctx, vars); err != nil {
		return Service{}, err
	}

	cfg := Defaults()
	if path := vars[EnvConfigFile]; path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Service{}, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Service{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Service{}, err
	}
	return cfg, nil
}

func (l Loader) logger() *log.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return log.Default()
}

func (l Loader) mergeDotEnv(vars map[string]string) error {
	path := vars[EnvFilePath]
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("read env file %s: %w", path, err)
	}

	for key, val := range values {
		if _, ok := vars[key]; !ok {
			vars[key] = val
		}
	}
	return nil
}

func (l Loader) mergeSecrets(ctx context.Context, vars map[string]string) error {
	secretID := vars[EnvSecretID]
	if secretID == "" {
		return nil
	}

	client := l.Secrets
	if client == nil {
		awsCfg, err := loadAWSConfig(ctx, vars[EnvSecretRegion])
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		client = secretsmanager.NewFromConfig(awsCfg)
	}

	stage := vars[EnvSecretStage]
	if stage == "" {
		stage = "AWSCURRENT"
	}
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String(stage),
	})
	if err != nil {
		return fmt.Errorf("fetching secret %s: %w", secretID, err)
	}

	var payload []byte
	switch {
	case out.SecretString != nil:
		payload = []byte(*out.SecretString)
	case len(out.SecretBinary) > 0:
		payload = out.SecretBinary
	default:
		return fmt.Errorf("secret %s has no payload", secretID)
	}

	var kv map[string]any
	if err := json.Unmarshal(payload, &kv); err != nil {
		return fmt.Errorf("parsing secret %s as JSON: %w", secretID, err)
	}

	overwrite := strings.EqualFold(vars[EnvSecretOverwrite], "true")
	applied := 0
	for key, val := range kv {
		if _, ok := vars[key]; ok && !overwrite {
			continue
		}
		vars[key] = fmt.Sprint(val)
		applied++
	}
	l.logger().Printf("authcore: loaded %d settings from secret %s", applied, secretID)
	return nil
}

func loadYAML(path string, cfg *Service) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return nil
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	if region != "" {
		return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	}
	return awsconfig.LoadDefaultConfig(ctx)
}

func toMap(environ []string) map[string]string {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if ok && key != "" {
			vars[key] = val
		}
	}
	return vars
}
