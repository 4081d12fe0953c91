package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Apply overlays an explicit parameter mapping on top of cfg. Keys use
// "section.key" form ("emr.instance_count", "s3.bucket"); values may be
// strings and are weakly decoded into the field type. Unknown keys are
// rejected.
func Apply(cfg *Config, params map[string]any) error {
	if len(params) == 0 {
		return nil
	}

	nested := make(map[string]any)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		section, field, ok := strings.Cut(k, ".")
		if !ok || section == "" || field == "" {
			return fmt.Errorf("invalid setting %q: expected section.key", k)
		}
		m, _ := nested[section].(map[string]any)
		if m == nil {
			m = make(map[string]any)
			nested[section] = m
		}
		m[field] = params[k]
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
		Result:           cfg,
	})
	if err != nil {
		return fmt.Errorf("creating settings decoder: %w", err)
	}
	if err := dec.Decode(nested); err != nil {
		return fmt.Errorf("applying settings: %w", err)
	}

	cfg.applyDefaults()
	return nil
}

// ParseSettings turns "section.key=value" pairs into a parameter mapping.
func ParseSettings(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid setting %q: expected section.key=value", p)
		}
		params[strings.TrimSpace(k)] = v
	}
	return params, nil
}
