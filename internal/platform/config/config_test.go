package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "hq-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Environment != "local" {
		t.Errorf("expected default environment local, got %s", cfg.Environment)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "hq-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "hq-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.QuoteEventsTopic != defaultQuoteEventsTopic {
		t.Errorf("expected default quote events topic, got %q", cfg.PubSub.QuoteEventsTopic)
	}
	if cfg.Pricing.TableFile != "" {
		t.Errorf("expected no pricing table override, got %q", cfg.Pricing.TableFile)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != defaultIdempotencyInterval {
		t.Errorf("unexpected default cleanup interval: %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != defaultIdempotencyBatchSize {
		t.Errorf("unexpected default cleanup batch size: %d", cfg.Idempotency.CleanupBatchSize)
	}
	if cfg.Idempotency.RequireKey {
		t.Errorf("expected idempotency key to be optional by default")
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_ENVIRONMENT":                  "Prod",
		"API_SERVER_PORT":                  "9090",
		"API_SERVER_READ_TIMEOUT":          "20s",
		"API_SERVER_WRITE_TIMEOUT":         "25s",
		"API_SERVER_IDLE_TIMEOUT":          "2m",
		"API_FIREBASE_PROJECT_ID":          "hq-prod",
		"API_FIREBASE_CREDENTIALS_JSON":    "sm://firebase/admin",
		"API_FIRESTORE_PROJECT_ID":         "hq-fire",
		"API_PUBSUB_PROJECT_ID":            "hq-events",
		"API_PUBSUB_QUOTE_EVENTS_TOPIC":    "quotes-v2",
		"API_PRICING_TABLE_FILE":           "/etc/quote/rates.yaml",
		"API_IDEMPOTENCY_HEADER":           "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":              "48h",
		"API_IDEMPOTENCY_CLEANUP_INTERVAL": "30m",
		"API_IDEMPOTENCY_CLEANUP_BATCH":    "500",
		"API_IDEMPOTENCY_REQUIRE_KEY":      "yes",
	}

	var requested []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		requested = append(requested, ref)
		if ref == "secret://firebase/admin" {
			return `{"type":"service_account"}`, nil
		}
		return "", errors.New("unknown secret")
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""),
		WithSecretResolver(resolver),
		WithRequiredSecrets("Firebase.CredentialsJSON"),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if len(requested) != 1 || requested[0] != "secret://firebase/admin" {
		t.Fatalf("expected sm:// reference to be normalised, got %v", requested)
	}
	if cfg.Environment != "prod" {
		t.Errorf("expected environment prod, got %s", cfg.Environment)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Firebase.CredentialsJSON != `{"type":"service_account"}` {
		t.Errorf("expected resolved credentials, got %s", cfg.Firebase.CredentialsJSON)
	}
	if cfg.Firestore.ProjectID != "hq-fire" {
		t.Errorf("unexpected firestore project %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "hq-events" || cfg.PubSub.QuoteEventsTopic != "quotes-v2" {
		t.Errorf("unexpected pubsub config %+v", cfg.PubSub)
	}
	if cfg.Pricing.TableFile != "/etc/quote/rates.yaml" {
		t.Errorf("unexpected pricing table file %s", cfg.Pricing.TableFile)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != 30*time.Minute {
		t.Errorf("unexpected cleanup interval %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != 500 {
		t.Errorf("unexpected cleanup batch size %d", cfg.Idempotency.CleanupBatchSize)
	}
	if !cfg.Idempotency.RequireKey {
		t.Errorf("expected idempotency key to be required")
	}
}

func TestLoadEmptyTopicDisablesEvents(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":       "hq-dev",
		"API_PUBSUB_QUOTE_EVENTS_TOPIC": "",
	}
	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.PubSub.QuoteEventsTopic != "" {
		t.Fatalf("expected empty topic, got %q", cfg.PubSub.QuoteEventsTopic)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\n# comment\nexport API_FIREBASE_PROJECT_ID=\"hq-dot\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "hq-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}

	cfg, err = Load(context.Background(),
		WithEnvFile(envPath), WithoutSystemEnv(),
		WithEnvMap(map[string]string{"API_SERVER_PORT": "6060"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected explicit map to override dotenv, got %s", cfg.Server.Port)
	}
}

func TestLoadValidationError(t *testing.T) {
	env := map[string]string{
		"API_IDEMPOTENCY_TTL": "-1s",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := validation.Fields()
	want := map[string]bool{"Firebase.ProjectID": true, "Firestore.ProjectID": true, "Idempotency.TTL": true}
	if len(fields) != len(want) {
		t.Fatalf("unexpected fields %v", fields)
	}
	for _, field := range fields {
		if !want[field] {
			t.Fatalf("unexpected field %s in %v", field, fields)
		}
	}
}

func TestLoadSecretFailures(t *testing.T) {
	base := map[string]string{
		"API_FIREBASE_PROJECT_ID":       "hq-dev",
		"API_FIREBASE_CREDENTIALS_JSON": "secret://firebase/admin",
	}

	t.Run("resolver not configured", func(t *testing.T) {
		_, err := Load(context.Background(), WithEnvMap(base), WithoutSystemEnv(), WithEnvFile(""))
		var secretErr *SecretError
		if !errors.As(err, &secretErr) {
			t.Fatalf("expected secret error, got %v", err)
		}
		if !errors.Is(err, errSecretResolverNotConfigured) {
			t.Fatalf("expected resolver not configured, got %v", err)
		}
	})

	t.Run("required secret empty", func(t *testing.T) {
		resolver := SecretResolverFunc(func(context.Context, string) (string, error) { return " ", nil })
		_, err := Load(context.Background(),
			WithEnvMap(base), WithoutSystemEnv(), WithEnvFile(""),
			WithSecretResolver(resolver),
			WithRequiredSecrets("Firebase.CredentialsJSON", "Firebase.CredentialsJSON"),
		)
		var missing *MissingSecretsError
		if !errors.As(err, &missing) {
			t.Fatalf("expected missing secrets error, got %v", err)
		}
		if names := missing.Names(); len(names) != 1 || names[0] != "Firebase.CredentialsJSON" {
			t.Fatalf("unexpected missing names %v", names)
		}
		if redacted := missing.RedactedNames(); len(redacted) != 1 || len(redacted[0]) != 16 {
			t.Fatalf("unexpected redacted names %v", redacted)
		}
	})
}

func TestEnvironmentValuesPrecedence(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("A=dot\nB=dot\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	values, err := EnvironmentValues(WithEnvFile(envPath), WithoutSystemEnv(), WithEnvMap(map[string]string{"B": "map"}))
	if err != nil {
		t.Fatalf("EnvironmentValues: %v", err)
	}
	if values["A"] != "dot" || values["B"] != "map" {
		t.Fatalf("unexpected values %v", values)
	}
}
