package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/creditgate/billing/internal/adapters/ports"
	"github.com/creditgate/billing/internal/adapters/secrets"
	"github.com/creditgate/billing/internal/config"
)

// initSecretManager selects the secret backend from configuration.
// Supports:
//   - env/file (development default): secrets come from environment
//     variables or files under SECRETS_BASE_PATH
//   - AWS Secrets Manager: SECRET_MANAGER=aws
//   - HashiCorp Vault (KV v2): SECRET_MANAGER=vault
func initSecretManager(ctx context.Context, cfg *config.SecretsConfig, logger *zap.Logger) ports.SecretManager {
	switch cfg.Manager {
	case "aws":
		awsCfg := secrets.DefaultAWSSecretsManagerConfig(cfg.AWSRegion)
		awsCfg.Profile = cfg.AWSProfile
		awsCfg.Endpoint = cfg.AWSEndpoint
		if cfg.CacheTTL > 0 {
			awsCfg.CacheTTL = cfg.CacheTTL
		}
		sm, err := secrets.NewAWSSecretsManager(ctx, awsCfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize AWS Secrets Manager",
				zap.Error(err),
				zap.String("region", cfg.AWSRegion))
		}
		logger.Info("AWS Secrets Manager initialized",
			zap.String("region", cfg.AWSRegion))
		return sm

	case "vault":
		vaultCfg := secrets.DefaultVaultConfig(cfg.VaultAddress)
		vaultCfg.AuthMethod = cfg.VaultAuthMethod
		vaultCfg.Token = cfg.VaultToken
		vaultCfg.RoleID = cfg.VaultRoleID
		vaultCfg.SecretID = cfg.VaultSecretID
		vaultCfg.MountPath = cfg.VaultMountPath
		vaultCfg.Namespace = cfg.VaultNamespace
		if cfg.CacheTTL > 0 {
			vaultCfg.CacheTTL = cfg.CacheTTL
		}
		sm, err := secrets.NewVaultSecretManager(ctx, vaultCfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Vault secret manager",
				zap.Error(err),
				zap.String("address", cfg.VaultAddress))
		}
		logger.Info("Vault secret manager initialized",
			zap.String("address", cfg.VaultAddress),
			zap.String("auth_method", cfg.VaultAuthMethod))
		return sm

	case "env", "":
		return secrets.NewEnvSecretManager(cfg.BasePath, logger)

	default:
		logger.Warn("Unknown SECRET_MANAGER type, falling back to env",
			zap.String("secret_manager", cfg.Manager))
		return secrets.NewEnvSecretManager(cfg.BasePath, logger)
	}
}

// resolveStripeSecrets fills in the Stripe API key and webhook secret from
// the secret manager when they are not set directly in the environment.
// Direct values win so local development needs no secret backend.
func resolveStripeSecrets(ctx context.Context, cfg *config.StripeConfig, sm ports.SecretManager, logger *zap.Logger) error {
	if cfg.APIKey == "" {
		secret, err := sm.GetSecret(ctx, cfg.APIKeyPath)
		if err != nil {
			return err
		}
		cfg.APIKey = secret.Value
		logger.Info("Stripe API key resolved from secret manager",
			zap.String("path", cfg.APIKeyPath))
	}
	if cfg.WebhookSecret == "" {
		secret, err := sm.GetSecret(ctx, cfg.WebhookSecretPath)
		if err != nil {
			return err
		}
		cfg.WebhookSecret = secret.Value
		logger.Info("Stripe webhook secret resolved from secret manager",
			zap.String("path", cfg.WebhookSecretPath))
	}
	return nil
}
