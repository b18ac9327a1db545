package minio

import (
	"Jarvis_RAG/backend/go/internal/config"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_NoNetwork(t *testing.T) {
	c, err := NewClient(&config.MinIOConfig{Endpoint: "minio.internal:9000", AccessKey: "ak", SecretKey: "sk", Region: "us-east-1"})
	require.NoError(t, err)
	assert.Equal(t, "minio.internal:9000", c.EndpointURL().Host)
}

func TestNewClient_BadEndpoint(t *testing.T) {
	_, err := NewClient(&config.MinIOConfig{Endpoint: "http://minio:9000/path"})
	assert.Error(t, err)
}

func TestHealthCheck_Uninitialized(t *testing.T) {
	Close()
	assert.Error(t, HealthCheck(context.Background()))
}
