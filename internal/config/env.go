package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is read at startup when present.
const DefaultEnvFile = ".env"

// LoadDotEnv loads variables from path into the process environment without
// overriding variables that are already set. A missing file is only an
// error when required is true.
func LoadDotEnv(path string, required bool) error {
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			slog.Debug("No env file found, using process environment", "path", path)
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	slog.Debug("Loaded env file", "path", path)
	return nil
}

// SecretSettings selects an AWS Secrets Manager secret whose JSON object is
// copied into the environment before configuration is read.
type SecretSettings struct {
	SecretID     string
	Region       string
	VersionStage string
	Overwrite    bool
}

// SecretSettingsFromEnv reads KEYGATE_AWS_SECRET_* variables. An empty
// SecretID means no secret is configured.
func SecretSettingsFromEnv() SecretSettings {
	s := SecretSettings{
		SecretID:     env("AWS_SECRET_ID"),
		Region:       env("AWS_SECRET_REGION"),
		VersionStage: env("AWS_SECRET_VERSION_STAGE"),
		Overwrite:    strings.EqualFold(env("AWS_SECRET_OVERWRITE"), "true"),
	}
	if s.VersionStage == "" {
		s.VersionStage = "AWSCURRENT"
	}
	return s
}

// SecretFetcher is the subset of the Secrets Manager client used here.
type SecretFetcher interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewSecretFetcher builds a Secrets Manager client from the default AWS
// credential chain.
func NewSecretFetcher(ctx context.Context, region string) (SecretFetcher, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// LoadSecrets fetches the configured secret and exports each top-level
// field as an environment variable. It returns the number of variables set.
// Typical secrets carry KEYGATE_DEFAULT_KEY.
func LoadSecrets(ctx context.Context, client SecretFetcher, settings SecretSettings) (int, error) {
	if settings.SecretID == "" {
		return 0, nil
	}

	input := &secretsmanager.GetSecretValueInput{SecretId: aws.String(settings.SecretID)}
	if settings.VersionStage != "" {
		input.VersionStage = aws.String(settings.VersionStage)
	}

	out, err := client.GetSecretValue(ctx, input)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch secret %s: %w", settings.SecretID, err)
	}

	var payload string
	switch {
	case out.SecretString != nil:
		payload = *out.SecretString
	case len(out.SecretBinary) > 0:
		payload = string(out.SecretBinary)
	default:
		return 0, fmt.Errorf("secret %s has no payload", settings.SecretID)
	}

	var values map[string]any
	if err := json.Unmarshal([]byte(payload), &values); err != nil {
		return 0, fmt.Errorf("secret %s is not a JSON object: %w", settings.SecretID, err)
	}

	applied := 0
	for name, v := range values {
		if !settings.Overwrite && os.Getenv(name) != "" {
			continue
		}
		if err := os.Setenv(name, fmt.Sprint(v)); err != nil {
			return applied, fmt.Errorf("failed to set %s from secret: %w", name, err)
		}
		applied++
	}

	// Only names are logged; values may be credentials.
	slog.Info("Loaded environment from AWS Secrets Manager",
		"secret_id", settings.SecretID,
		"applied", applied,
		"overwrite", settings.Overwrite,
	)
	return applied, nil
}
