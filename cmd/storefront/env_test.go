package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/platform/config"
)

func TestRequiredSecretNames(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want []string
	}{
		{
			name: "stripe by default",
			env:  map[string]string{},
			want: []string{"Checkout.OrderTokenSecret", "Freight.Token", "Payments.StripeAPIKey", "Payments.StripeWebhookSecret"},
		},
		{
			name: "sandbox with cms webhook",
			env: map[string]string{
				"STOREFRONT_PAYMENTS_PROVIDER":  "Sandbox",
				"STOREFRONT_CMS_WEBHOOK_SECRET": "secret://cms-webhook",
				"STOREFRONT_HMAC_SECRETS":       "Erp=secret://erp, cms=secret://cms-webhook",
			},
			want: []string{"CMS.WebhookSecret", "Checkout.OrderTokenSecret", "Freight.Token", "Security.HMAC.Secrets[cms]", "Security.HMAC.Secrets[erp]"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, requiredSecretNames(tc.env))
		})
	}
}

func TestSecretVersionPinsFromEnv(t *testing.T) {
	pins := secretVersionPinsFromEnv(map[string]string{
		"STOREFRONT_SECRET_VERSION_PINS": "prod:stripe-key=3, sm://freight-token=7,broken,cms=",
	})
	assert.Equal(t, map[string]string{
		"prod:secret://stripe-key": "3",
		"secret://freight-token":   "7",
	}, pins)
}

func TestSecretProjectMapFromEnv(t *testing.T) {
	projects := secretProjectMapFromEnv(map[string]string{
		"STOREFRONT_SECRET_PROJECT_IDS": "PROD=love-prod, staging = love-stg",
	})
	assert.Equal(t, map[string]string{"prod": "love-prod", "staging": "love-stg"}, projects)
	assert.Empty(t, secretProjectMapFromEnv(nil))
}

func TestBuildInfoFromEnv(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	info := buildInfoFromEnv(map[string]string{}, config.Config{}, started)
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, "unknown", info.CommitSHA)
	assert.Equal(t, "local", info.Environment)

	info = buildInfoFromEnv(map[string]string{
		"STOREFRONT_BUILD_VERSION":    "1.4.0",
		"STOREFRONT_BUILD_COMMIT_SHA": "abc123",
	}, config.Config{Environment: "prod"}, started)
	assert.Equal(t, "1.4.0", info.Version)
	assert.Equal(t, "abc123", info.CommitSHA)
	assert.Equal(t, "prod", info.Environment)
	assert.Equal(t, started, info.StartedAt)
}
