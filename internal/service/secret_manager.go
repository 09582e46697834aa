package service

import (
	"context"
	"fmt"
	"strings"

	"skechum/internal/config"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
)

// SecretManagerService reads credentials that are supplied out of band.
type SecretManagerService interface {
	AccessSecret(ctx context.Context, name string) (string, error)
	Close() error
}

// secretAccessor is the subset of the Secret Manager client the service uses.
type secretAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

type secretManagerService struct {
	client    secretAccessor
	projectID string
}

func NewSecretManagerService(ctx context.Context, cfg *config.Config) (SecretManagerService, error) {
	if cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("GCP Project ID is not set for the current environment")
	}

	// Note: Secret Manager requires a real GCP project even for local development.
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}

	return &secretManagerService{
		client:    client,
		projectID: cfg.GCPProjectID,
	}, nil
}

// resourceName accepts a bare secret id, a secret path or a full version path.
func (s *secretManagerService) resourceName(name string) string {
	switch {
	case strings.Contains(name, "/versions/"):
		return name
	case strings.HasPrefix(name, "projects/"):
		return name + "/versions/latest"
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.projectID, name)
}

func (s *secretManagerService) AccessSecret(ctx context.Context, name string) (string, error) {
	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: s.resourceName(name),
	}

	result, err := s.client.AccessSecretVersion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to access secret version: %w", err)
	}

	return strings.TrimSpace(string(result.Payload.Data)), nil
}

func (s *secretManagerService) Close() error {
	return s.client.Close()
}
