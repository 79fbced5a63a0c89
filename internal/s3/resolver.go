/*
Copyright 2019 Google LLC.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package s3 resolves user-provided object paths against the configured
// bucket through the MinIO client.
package s3

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/streamops/flink-operator/internal/conf"
	"github.com/streamops/flink-operator/internal/util"
)

// UnableToResolveS3Resource reports a failed object download or lookup.
type UnableToResolveS3Resource struct {
	Path  string
	Cause error
}

func (e *UnableToResolveS3Resource) Error() string {
	return fmt.Sprintf("unable to resolve s3 resource %q: %s", e.Path, e.Cause)
}

func (e *UnableToResolveS3Resource) Unwrap() error { return e.Cause }

// Resolver moves objects between the configured bucket and the local
// filesystem.
type Resolver struct {
	client *minio.Client
	conf   conf.S3Conf
}

func NewResolver(c conf.S3Conf) (*Resolver, error) {
	lookup := minio.BucketLookupDNS
	if c.PathStyleAccess {
		lookup = minio.BucketLookupPath
	}
	client, err := minio.New(trimScheme(c.Endpoint), &minio.Options{
		Creds:        credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
		Secure:       c.SslEnabled,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client for %s: %w", c.Endpoint, err)
	}
	return &Resolver{client: client, conf: c}, nil
}

func trimScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}

// split derives (bucket, key) from an s3 path. Path-style addressing takes
// the bucket from the leading path segment, virtual-hosted style from the
// configured bucket.
func (r *Resolver) split(s3Path string) (string, string, error) {
	pure := util.PurePath(s3Path)
	if r.conf.PathStyleAccess {
		segs := strings.SplitN(pure, "/", 2)
		if len(segs) != 2 || segs[0] == "" || segs[1] == "" {
			return "", "", fmt.Errorf("path %q carries no bucket/key pair", s3Path)
		}
		return segs[0], segs[1], nil
	}
	if r.conf.Bucket == "" {
		return "", "", fmt.Errorf("no bucket configured for virtual-hosted path %q", s3Path)
	}
	key := strings.TrimPrefix(pure, r.conf.Bucket+"/")
	return r.conf.Bucket, key, nil
}

// Download fetches the object behind s3Path into localPath.
func (r *Resolver) Download(ctx context.Context, s3Path, localPath string) error {
	bucket, key, err := r.split(s3Path)
	if err != nil {
		return &UnableToResolveS3Resource{Path: s3Path, Cause: err}
	}
	if err := r.client.FGetObject(ctx, bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return &UnableToResolveS3Resource{Path: s3Path, Cause: err}
	}
	return nil
}

// Upload puts a local file at s3Path.
func (r *Resolver) Upload(ctx context.Context, localPath, s3Path string) error {
	bucket, key, err := r.split(s3Path)
	if err != nil {
		return &UnableToResolveS3Resource{Path: s3Path, Cause: err}
	}
	if _, err := r.client.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{}); err != nil {
		return &UnableToResolveS3Resource{Path: s3Path, Cause: err}
	}
	return nil
}

// Exists heads the object behind s3Path.
func (r *Resolver) Exists(ctx context.Context, s3Path string) (bool, error) {
	bucket, key, err := r.split(s3Path)
	if err != nil {
		return false, &UnableToResolveS3Resource{Path: s3Path, Cause: err}
	}
	_, err = r.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, &UnableToResolveS3Resource{Path: s3Path, Cause: err}
	}
	return true, nil
}

// Delete removes the object behind s3Path, best effort on missing keys.
func (r *Resolver) Delete(ctx context.Context, s3Path string) error {
	bucket, key, err := r.split(s3Path)
	if err != nil {
		return &UnableToResolveS3Resource{Path: s3Path, Cause: err}
	}
	if err := r.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return &UnableToResolveS3Resource{Path: s3Path, Cause: err}
	}
	return nil
}
