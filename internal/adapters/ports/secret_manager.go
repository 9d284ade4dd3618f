package ports

import (
	"context"
)

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value     string            // The secret value (e.g., Stripe API key)
	Version   string            // Secret version identifier
	Metadata  map[string]string // Additional secret metadata
	CreatedAt string            // When this version was created
}

// SecretManager defines the port for resolving runtime secrets such as the
// Stripe API key, the webhook signing secret, and database credentials.
// Supports multiple backends: env/file (development), AWS Secrets Manager,
// HashiCorp Vault. Implementation is responsible for:
//   - Authentication with the secret manager service
//   - Caching secrets appropriately (with TTL)
//   - Never logging secret values
type SecretManager interface {
	// GetSecret retrieves a secret by its path/name
	// Path format depends on implementation:
	//   - env/file: "billing/stripe/api_key" -> BILLING_STRIPE_API_KEY or file
	//   - AWS: "billing/stripe/api_key" or full ARN
	//   - Vault: "billing/stripe/api_key" under the configured KV mount
	// Returns error if:
	//   - Secret does not exist
	//   - Insufficient permissions
	//   - Network communication fails
	//   - Secret manager service is unavailable
	GetSecret(ctx context.Context, path string) (*Secret, error)

	// GetSecretVersion retrieves a specific version of a secret
	// Useful during key rotation to access the previous version
	// Returns error with same conditions as GetSecret
	GetSecretVersion(ctx context.Context, path string, version string) (*Secret, error)

	// PutSecret creates or updates a secret (ops tooling)
	// Returns the new version identifier
	// Returns error if:
	//   - Insufficient permissions
	//   - Secret format is invalid
	//   - Network communication fails
	PutSecret(ctx context.Context, path string, value string, metadata map[string]string) (version string, err error)

	// DeleteSecret permanently deletes a secret (ops tooling only)
	// Use with extreme caution - this is irreversible
	// Returns error if:
	//   - Insufficient permissions
	//   - Secret does not exist
	DeleteSecret(ctx context.Context, path string) error
}
