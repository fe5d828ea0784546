package export

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"

	"github.com/mengysun/DataParasite/internal/config"
)

// s3Exporter archives the run artifacts (JSONL stream and clean CSV)
// under a per-run prefix in an S3-compatible bucket. Credentials come
// from the environment; the endpoint and bucket come from the task
// config.
type s3Exporter struct {
	client *minio.Client
	bucket string
}

func newS3(spec config.ExportSpec) (*s3Exporter, error) {
	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")
	useSSL := os.Getenv("MINIO_USE_SSL") == "true"
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("export: missing required environment variables: MINIO_ACCESS_KEY, MINIO_SECRET_KEY")
	}

	client, err := minio.New(spec.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("export: minio client: %w", err)
	}
	return &s3Exporter{client: client, bucket: spec.Bucket}, nil
}

func (e *s3Exporter) Export(ctx context.Context, run Run) error {
	exists, err := e.client.BucketExists(ctx, e.bucket)
	if err != nil {
		return fmt.Errorf("export: check bucket: %w", err)
	}
	if !exists {
		if err := e.client.MakeBucket(ctx, e.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("export: make bucket: %w", err)
		}
	}

	artifacts := []struct{ path, contentType string }{
		{run.JSONLPath, "application/x-ndjson"},
		{run.CSVPath, "text/csv"},
	}

	// Artifacts are independent objects; upload them concurrently and
	// let the first failure cancel the rest.
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range artifacts {
		if a.path == "" {
			continue
		}
		a := a
		g.Go(func() error {
			key := objectKey(run.ID, a.path)
			opts := minio.PutObjectOptions{ContentType: a.contentType}
			if _, err := e.client.FPutObject(gctx, e.bucket, key, a.path, opts); err != nil {
				return fmt.Errorf("export: upload %s: %w", filepath.Base(a.path), err)
			}
			log.Printf("Uploaded %s to bucket %s as %s", filepath.Base(a.path), e.bucket, key)
			return nil
		})
	}
	return g.Wait()
}

func (e *s3Exporter) Close() error { return nil }

// objectKey places artifacts under a per-run prefix.
func objectKey(runID, path string) string {
	return fmt.Sprintf("runs/%s/%s", runID, filepath.Base(path))
}
