// Vaultkeeper - Tenant Backup, Restore and Cloud Sync Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vaultkeeper

// Package testinfra starts Docker containers for integration tests with
// testcontainers-go. Everything here is behind the integration build tag.
//
// # MinIO
//
// MinIOContainer provides an S3-compatible endpoint for the cloud store:
//
//	func TestS3Store(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    minio, err := testinfra.NewMinIOContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    testinfra.CleanupContainer(t, minio)
//
//	    store, err := cloud.NewS3Store(ctx, cloud.S3Options{
//	        Bucket:       "vaultkeeper-test",
//	        Endpoint:     minio.Endpoint,
//	        AccessKey:    minio.AccessKey,
//	        SecretKey:    minio.SecretKey,
//	        UsePathStyle: true,
//	    })
//	}
//
// Run with:
//
//	go test -tags integration ./internal/cloud/...
//
// Tests are skipped when Docker is unavailable. The first run downloads the image.
package testinfra
