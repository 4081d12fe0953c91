package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

const secretLookupTimeout = 30 * time.Second

type secretsGetter interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// newSecretsClient is replaced in tests.
var newSecretsClient = func(ctx context.Context, region string) (secretsGetter, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// resolveAWSSecretsManager resolves "name" to the whole secret string, or
// "name#field" to one field of a JSON secret such as the
// username/password/host/port document stored for a Redshift cluster.
func resolveAWSSecretsManager(region, ref string) (string, error) {
	name, field, hasField := strings.Cut(ref, "#")
	if name == "" || (hasField && field == "") {
		return "", fmt.Errorf("secrets manager reference %q: want <name> or <name>#<field>", ref)
	}

	ctx, cancel := context.WithTimeout(context.Background(), secretLookupTimeout)
	defer cancel()

	client, err := newSecretsClient(ctx, region)
	if err != nil {
		return "", err
	}
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("reading secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s is binary; only string secrets can be used in the config", name)
	}
	if !hasField {
		return aws.ToString(out.SecretString), nil
	}

	var doc map[string]interface{}
	dec := json.NewDecoder(strings.NewReader(*out.SecretString))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return "", fmt.Errorf("secret %s is not a JSON document: %w", name, err)
	}
	return secretField(doc, "secret "+name, field)
}
