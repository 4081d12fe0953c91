package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/vault/api"
)

// resolveVault resolves "<path>#<field>" against the Vault server named
// by VAULT_ADDR, using VAULT_TOKEN and the optional VAULT_NAMESPACE.
// Both KV v1 and KV v2 mounts are understood.
func resolveVault(ref string) (string, error) {
	path, field, ok := strings.Cut(ref, "#")
	if !ok || path == "" || field == "" {
		return "", fmt.Errorf("vault reference %q: want <path>#<field>", ref)
	}

	addr, token := os.Getenv("VAULT_ADDR"), os.Getenv("VAULT_TOKEN")
	if addr == "" || token == "" {
		return "", fmt.Errorf("vault reference %q: VAULT_ADDR and VAULT_TOKEN must be set", ref)
	}

	cfg := api.DefaultConfig()
	cfg.Address = addr
	client, err := api.NewClient(cfg)
	if err != nil {
		return "", fmt.Errorf("vault client for %s: %w", addr, err)
	}
	client.SetToken(token)
	if ns := os.Getenv("VAULT_NAMESPACE"); ns != "" {
		client.SetNamespace(ns)
	}

	secret, err := client.Logical().Read(path)
	if err != nil {
		return "", fmt.Errorf("reading vault path %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("vault path %s holds no secret", path)
	}

	data := secret.Data
	if inner, ok := data["data"].(map[string]interface{}); ok {
		data = inner // KV v2
	}
	return secretField(data, "vault path "+path, field)
}

// secretField returns field of a decoded secret as a config string.
// Numbers (a stored warehouse port, say) are formatted; nested values
// are rejected.
func secretField(data map[string]interface{}, source, field string) (string, error) {
	v, ok := data[field]
	if !ok {
		return "", fmt.Errorf("%s has no field %q", source, field)
	}
	switch v := v.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case float64, int, int64, bool:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("%s field %q is %T, not a scalar", source, field, v)
	}
}
