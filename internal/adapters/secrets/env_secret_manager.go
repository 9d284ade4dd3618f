package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/creditgate/billing/internal/adapters/ports"
)

// envSecretManager implements SecretManager using environment variables with
// a filesystem fallback. Development backend: use AWS Secrets Manager or
// Vault in production.
type envSecretManager struct {
	basePath string
	logger   *zap.Logger
}

// NewEnvSecretManager creates a secret manager that resolves a path first as
// an environment variable (billing/stripe/api_key -> BILLING_STRIPE_API_KEY)
// and then as a file under basePath.
func NewEnvSecretManager(basePath string, logger *zap.Logger) ports.SecretManager {
	return &envSecretManager{
		basePath: basePath,
		logger:   logger,
	}
}

// envKey maps a secret path to its environment variable name
func envKey(path string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - ('a' - 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, path)
}

// GetSecret resolves a secret from the environment or the local filesystem
func (m *envSecretManager) GetSecret(ctx context.Context, secretPath string) (*ports.Secret, error) {
	if value := os.Getenv(envKey(secretPath)); value != "" {
		m.logger.Debug("Secret resolved from environment",
			zap.String("path", secretPath),
			zap.String("env_var", envKey(secretPath)),
		)
		return &ports.Secret{
			Value:   value,
			Version: "env",
		}, nil
	}

	filePath := filepath.Join(m.basePath, secretPath)

	m.logger.Debug("Reading secret from filesystem",
		zap.String("path", secretPath),
	)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("secret not found: %s", secretPath)
		}
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	// Support both plain text and JSON format
	var secretData struct {
		Value     string            `json:"value"`
		Tags      map[string]string `json:"tags"`
		CreatedAt string            `json:"created_at"`
	}
	if err := json.Unmarshal(data, &secretData); err == nil && secretData.Value != "" {
		return &ports.Secret{
			Value:     secretData.Value,
			Version:   "v1",
			Metadata:  secretData.Tags,
			CreatedAt: secretData.CreatedAt,
		}, nil
	}

	// Return as plain text if not JSON
	return &ports.Secret{
		Value:   strings.TrimSpace(string(data)),
		Version: "v1",
	}, nil
}

// GetSecretVersion retrieves a specific version of a secret
// Environment and filesystem backends only support "latest"
func (m *envSecretManager) GetSecretVersion(ctx context.Context, path string, version string) (*ports.Secret, error) {
	return m.GetSecret(ctx, path)
}

// PutSecret stores a secret in the local filesystem
func (m *envSecretManager) PutSecret(ctx context.Context, secretPath, secretValue string, tags map[string]string) (string, error) {
	filePath := filepath.Join(m.basePath, secretPath)

	m.logger.Info("Storing secret to filesystem",
		zap.String("path", secretPath),
	)

	// Create directory if it doesn't exist
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	// Store as JSON with metadata
	secretData := map[string]interface{}{
		"value":      secretValue,
		"tags":       tags,
		"created_at": time.Now().UTC(),
	}

	data, err := json.MarshalIndent(secretData, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal secret: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write secret: %w", err)
	}

	return "v1", nil
}

// DeleteSecret removes a secret from the local filesystem
func (m *envSecretManager) DeleteSecret(ctx context.Context, secretPath string) error {
	filePath := filepath.Join(m.basePath, secretPath)

	m.logger.Info("Deleting secret from filesystem",
		zap.String("path", secretPath),
	)

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("secret not found: %s", secretPath)
		}
		return fmt.Errorf("failed to delete secret: %w", err)
	}

	return nil
}
