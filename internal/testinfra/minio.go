// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultMinIOImage is pinned so test runs are reproducible
	DefaultMinIOImage = "minio/minio:RELEASE.2024-10-13T13-34-11Z"

	minioPort = "9000/tcp"

	// DefaultMinIOAccessKey and DefaultMinIOSecretKey are the root credentials
	DefaultMinIOAccessKey = "vaultkeeper"
	DefaultMinIOSecretKey = "vaultkeeper-secret"
)

// MinIOContainer is a running S3-compatible server.
type MinIOContainer struct {
	testcontainers.Container

	// Endpoint is the http://host:port base URL
	Endpoint  string
	AccessKey string
	SecretKey string
}

type minioConfig struct {
	image        string
	startTimeout time.Duration
}

// MinIOOption configures NewMinIOContainer.
type MinIOOption func(*minioConfig)

// WithMinIOImage overrides DefaultMinIOImage.
func WithMinIOImage(image string) MinIOOption {
	return func(c *minioConfig) { c.image = image }
}

// WithStartTimeout sets how long to wait for the health endpoint.
func WithStartTimeout(timeout time.Duration) MinIOOption {
	return func(c *minioConfig) { c.startTimeout = timeout }
}

// NewMinIOContainer starts MinIO and waits for /minio/health/live.
// The caller creates buckets; the server starts empty.
func NewMinIOContainer(ctx context.Context, opts ...MinIOOption) (*MinIOContainer, error) {
	cfg := &minioConfig{
		image:        DefaultMinIOImage,
		startTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{minioPort},
		Cmd:          []string{"server", "/data"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     DefaultMinIOAccessKey,
			"MINIO_ROOT_PASSWORD": DefaultMinIOSecretKey,
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(minioPort),
			wait.ForHTTP("/minio/health/live").WithPort(minioPort),
		).WithStartupTimeout(cfg.startTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, minioPort)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}

	return &MinIOContainer{
		Container: container,
		Endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
		AccessKey: DefaultMinIOAccessKey,
		SecretKey: DefaultMinIOSecretKey,
	}, nil
}
