package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecrets struct {
	output *secretsmanager.GetSecretValueOutput
	err    error
	input  *secretsmanager.GetSecretValueInput
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.input = params
	return f.output, f.err
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("KEYGATE_PORT=9191\nKEYGATE_HEADER_NAME=X-From-File\n"), 0600))

	t.Setenv("KEYGATE_PORT", "")
	require.NoError(t, os.Unsetenv("KEYGATE_PORT"))
	t.Setenv("KEYGATE_HEADER_NAME", "X-Already-Set")

	require.NoError(t, LoadDotEnv(path, true))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "X-Already-Set", cfg.Security.HeaderName)
}

func TestLoadDotEnv_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.env")

	assert.NoError(t, LoadDotEnv(missing, false))

	err := LoadDotEnv(missing, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load env file")
}

func TestSecretSettingsFromEnv(t *testing.T) {
	t.Setenv("KEYGATE_AWS_SECRET_ID", "keygate/prod")
	t.Setenv("KEYGATE_AWS_SECRET_REGION", "eu-west-1")
	t.Setenv("KEYGATE_AWS_SECRET_VERSION_STAGE", "")
	t.Setenv("KEYGATE_AWS_SECRET_OVERWRITE", "TRUE")

	s := SecretSettingsFromEnv()
	assert.Equal(t, "keygate/prod", s.SecretID)
	assert.Equal(t, "eu-west-1", s.Region)
	assert.Equal(t, "AWSCURRENT", s.VersionStage)
	assert.True(t, s.Overwrite)
}

func TestLoadSecrets(t *testing.T) {
	t.Run("no secret configured", func(t *testing.T) {
		fake := &fakeSecrets{}
		n, err := LoadSecrets(context.Background(), fake, SecretSettings{})
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Nil(t, fake.input)
	})

	t.Run("exports fields and respects existing values", func(t *testing.T) {
		t.Setenv("KEYGATE_DEFAULT_KEY", "")
		t.Setenv("KEYGATE_HEADER_NAME", "X-Existing")

		fake := &fakeSecrets{output: &secretsmanager.GetSecretValueOutput{
			SecretString: aws.String(`{"KEYGATE_DEFAULT_KEY":"sk-from-secret","KEYGATE_HEADER_NAME":"X-Secret"}`),
		}}
		n, err := LoadSecrets(context.Background(), fake, SecretSettings{SecretID: "keygate/prod", VersionStage: "AWSCURRENT"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, "keygate/prod", aws.ToString(fake.input.SecretId))
		assert.Equal(t, "AWSCURRENT", aws.ToString(fake.input.VersionStage))

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "sk-from-secret", cfg.Security.DefaultKey)
		assert.Equal(t, "X-Existing", cfg.Security.HeaderName)
		assert.False(t, cfg.Security.UsesDevelopmentKey())
	})

	t.Run("overwrite replaces existing values", func(t *testing.T) {
		t.Setenv("KEYGATE_HEADER_NAME", "X-Existing")

		fake := &fakeSecrets{output: &secretsmanager.GetSecretValueOutput{
			SecretBinary: []byte(`{"KEYGATE_HEADER_NAME":"X-Secret"}`),
		}}
		n, err := LoadSecrets(context.Background(), fake, SecretSettings{SecretID: "s", Overwrite: true})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, "X-Secret", os.Getenv("KEYGATE_HEADER_NAME"))
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name   string
			fake   *fakeSecrets
			errMsg string
		}{
			{"fetch fails", &fakeSecrets{err: errors.New("access denied")}, "failed to fetch secret"},
			{"empty payload", &fakeSecrets{output: &secretsmanager.GetSecretValueOutput{}}, "has no payload"},
			{"not json", &fakeSecrets{output: &secretsmanager.GetSecretValueOutput{SecretString: aws.String("sk-raw")}}, "not a JSON object"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := LoadSecrets(context.Background(), tt.fake, SecretSettings{SecretID: "s"})
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			})
		}
	})
}
