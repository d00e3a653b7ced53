// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

//go:build integration

package cloud

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tomtom215/vaultkeeper/internal/config"
	"github.com/tomtom215/vaultkeeper/internal/testinfra"
)

const integrationBucket = "vaultkeeper-test"

// setupMinIO starts MinIO and creates integrationBucket.
func setupMinIO(t *testing.T) *testinfra.MinIOContainer {
	t.Helper()
	testinfra.SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	minio, err := testinfra.NewMinIOContainer(ctx)
	if err != nil {
		t.Fatalf("start minio: %v", err)
	}
	testinfra.CleanupContainer(t, minio)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider(minio.AccessKey, minio.SecretKey, ""),
		BaseEndpoint: aws.String(minio.Endpoint),
		UsePathStyle: true,
	})
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(integrationBucket)}); err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	return minio
}

func TestS3Store_Integration(t *testing.T) {
	minio := setupMinIO(t)
	ctx := context.Background()

	store, err := NewS3Store(ctx, S3Options{
		Bucket:       integrationBucket,
		Region:       "us-east-1",
		Endpoint:     minio.Endpoint,
		AccessKey:    minio.AccessKey,
		SecretKey:    minio.SecretKey,
		UsePathStyle: true,
	})
	if err != nil {
		t.Fatalf("NewS3Store() error = %v", err)
	}

	payload := bytes.Repeat([]byte("ciphertext"), 1024)
	uri, err := store.Upload(ctx, payload, ObjectPath("vk", "school-a", "b1"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if want := "s3://" + integrationBucket + "/" + ObjectPath("vk", "school-a", "b1"); uri != want {
		t.Errorf("uri = %q, want %q", uri, want)
	}

	exists, err := store.Exists(ctx, uri)
	if err != nil || !exists {
		t.Fatalf("Exists() = %v, %v; want true", exists, err)
	}

	got, err := store.Download(ctx, uri)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("downloaded bytes differ from upload")
	}

	if err := store.Delete(ctx, uri); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if exists, _ := store.Exists(ctx, uri); exists {
		t.Error("object should be gone after Delete")
	}
	if _, err := store.Download(ctx, uri); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Download() after delete error = %v, want ErrObjectNotFound", err)
	}
	if err := store.Delete(ctx, uri); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
}

func TestNewRemoteStore_S3Integration(t *testing.T) {
	minio := setupMinIO(t)
	ctx := context.Background()

	cfg := config.Default().Cloud
	cfg.Enabled = true
	cfg.Provider = "s3"
	cfg.Bucket = integrationBucket
	cfg.Endpoint = minio.Endpoint
	cfg.AccessKey = minio.AccessKey
	cfg.SecretKey = minio.SecretKey
	cfg.UsePathStyle = true

	remote, err := NewRemoteStore(ctx, &cfg)
	if err != nil {
		t.Fatalf("NewRemoteStore() error = %v", err)
	}
	breaker, ok := remote.(*BreakerStore)
	if !ok {
		t.Fatalf("remote store type = %T, want *BreakerStore", remote)
	}

	uri, err := remote.Upload(ctx, []byte("artifact"), ObjectPath(cfg.Prefix, "school-b", "b2"))
	if err != nil {
		t.Fatalf("Upload() through breaker error = %v", err)
	}
	if _, err := remote.Download(ctx, uri); err != nil {
		t.Errorf("Download() through breaker error = %v", err)
	}
	if state := breaker.State(); state != "closed" {
		t.Errorf("breaker state = %q, want closed", state)
	}
}
