// Package secret resolves secret values (JWT signing key, speech API keys,
// origin-verification secret) from SSM Parameter Store or, in DEV_MODE,
// from environment variables.
package secret

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ErrNotSet is returned when a secret has no value in the backend.
var ErrNotSet = errors.New("secret not set")

// SSMClient is the subset of *ssm.Client methods used by SSMResolver.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver retrieves secret values by parameter name.
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SSMResolver fetches SecureString parameters from SSM Parameter Store.
type SSMResolver struct {
	client SSMClient
}

// NewSSMResolver returns a Resolver backed by SSM Parameter Store.
func NewSSMResolver(client SSMClient) *SSMResolver {
	return &SSMResolver{client: client}
}

// GetSecret retrieves a parameter from SSM with decryption.
func (r *SSMResolver) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	var notFound *ssmtypes.ParameterNotFound
	if errors.As(err, &notFound) {
		return "", fmt.Errorf("ssm parameter %q: %w", name, ErrNotSet)
	}
	if err != nil {
		return "", fmt.Errorf("ssm get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("ssm parameter %q: %w", name, ErrNotSet)
	}
	return *out.Parameter.Value, nil
}

// EnvResolver reads secrets from environment variables. The parameter path
// "/voznota/jwt-secret" maps to JWT_SECRET.
type EnvResolver struct{}

// NewEnvResolver returns a Resolver that reads from environment variables.
func NewEnvResolver() *EnvResolver {
	return &EnvResolver{}
}

// GetSecret reads from the environment variable derived from the parameter name.
func (r *EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	envName := paramNameToEnvVar(name)
	val := os.Getenv(envName)
	if val == "" {
		return "", fmt.Errorf("environment variable %q (from param %q): %w", envName, name, ErrNotSet)
	}
	return val, nil
}

// CachingResolver memoizes successful lookups so warm Lambda invocations do
// not hit SSM again. Failures are not cached.
type CachingResolver struct {
	next Resolver

	mu     sync.RWMutex
	values map[string]string
}

// NewCachingResolver wraps next with an in-process cache.
func NewCachingResolver(next Resolver) *CachingResolver {
	return &CachingResolver{next: next, values: make(map[string]string)}
}

func (c *CachingResolver) GetSecret(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	v, ok := c.values[name]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	v, err := c.next.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.values[name] = v
	c.mu.Unlock()
	return v, nil
}

// GetOrDefault resolves name and falls back to def when the secret is not set.
// Other failures (SSM unreachable, access denied) are returned.
func GetOrDefault(ctx context.Context, r Resolver, name, def string) (string, error) {
	v, err := r.GetSecret(ctx, name)
	if errors.Is(err, ErrNotSet) {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// paramNameToEnvVar converts an SSM parameter name to an environment variable name.
// "/voznota/jwt-secret" -> "JWT_SECRET"
// "/voznota/watson-stt-api-key" -> "WATSON_STT_API_KEY"
func paramNameToEnvVar(name string) string {
	parts := strings.Split(name, "/")
	last := parts[len(parts)-1]
	return strings.ToUpper(strings.ReplaceAll(last, "-", "_"))
}
