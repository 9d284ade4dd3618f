package secrets_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/creditgate/billing/internal/adapters/secrets"
)

func TestEnvSecretManager_ResolvesFromEnvironment(t *testing.T) {
	t.Setenv("BILLING_STRIPE_API_KEY", "sk_test_abc123")

	manager := secrets.NewEnvSecretManager(t.TempDir(), zap.NewNop())

	secret, err := manager.GetSecret(context.Background(), "billing/stripe/api_key")

	require.NoError(t, err)
	assert.Equal(t, "sk_test_abc123", secret.Value)
	assert.Equal(t, "env", secret.Version)
}

func TestEnvSecretManager_FallsBackToPlainTextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "billing", "stripe")
	require.NoError(t, os.MkdirAll(path, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(path, "webhook_secret"), []byte("whsec_xyz\n"), 0600))

	manager := secrets.NewEnvSecretManager(dir, zap.NewNop())

	secret, err := manager.GetSecret(context.Background(), "billing/stripe/webhook_secret")

	require.NoError(t, err)
	assert.Equal(t, "whsec_xyz", secret.Value, "plain text secrets are trimmed")
}

func TestEnvSecretManager_ReadsJSONFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "billing")
	require.NoError(t, os.MkdirAll(path, 0700))
	payload := `{"value": "sk_live_9", "tags": {"team": "billing"}, "created_at": "2025-01-01T00:00:00Z"}`
	require.NoError(t, os.WriteFile(filepath.Join(path, "api_key"), []byte(payload), 0600))

	manager := secrets.NewEnvSecretManager(dir, zap.NewNop())

	secret, err := manager.GetSecret(context.Background(), "billing/api_key")

	require.NoError(t, err)
	assert.Equal(t, "sk_live_9", secret.Value)
	assert.Equal(t, "billing", secret.Metadata["team"])
	assert.Equal(t, "2025-01-01T00:00:00Z", secret.CreatedAt)
}

func TestEnvSecretManager_NotFound(t *testing.T) {
	manager := secrets.NewEnvSecretManager(t.TempDir(), zap.NewNop())

	_, err := manager.GetSecret(context.Background(), "billing/missing")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret not found")
}

func TestEnvSecretManager_PutGetDeleteRoundtrip(t *testing.T) {
	manager := secrets.NewEnvSecretManager(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	version, err := manager.PutSecret(ctx, "billing/stripe/api_key", "sk_test_new", map[string]string{"env": "test"})
	require.NoError(t, err)
	assert.Equal(t, "v1", version)

	secret, err := manager.GetSecret(ctx, "billing/stripe/api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk_test_new", secret.Value)
	assert.Equal(t, "test", secret.Metadata["env"])

	require.NoError(t, manager.DeleteSecret(ctx, "billing/stripe/api_key"))

	_, err = manager.GetSecret(ctx, "billing/stripe/api_key")
	assert.Error(t, err)
}
