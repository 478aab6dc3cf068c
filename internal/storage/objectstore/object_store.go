package objectstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"camtrap/internal/config"
	"camtrap/internal/models"
	"camtrap/internal/storage"
)

// ObjectStore serves camera folders from an S3-compatible bucket. Folders
// are key prefixes; an empty folder is a "prefix/" marker object.
type ObjectStore struct {
	client     *minio.Client
	bucket     string
	region     string
	linkExpiry time.Duration
	now        func() time.Time
}

func NewObjectStore(cfg config.MinIOConfig) (*ObjectStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	linkExpiry := cfg.LinkExpiry
	if linkExpiry <= 0 {
		linkExpiry = 4 * time.Hour
	}

	return &ObjectStore{
		client:     client,
		bucket:     cfg.Bucket,
		region:     cfg.Region,
		linkExpiry: linkExpiry,
		now:        time.Now,
	}, nil
}

var _ storage.Backend = (*ObjectStore)(nil)

// EnsureBucket creates the bucket when it does not exist yet.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

func (s *ObjectStore) ListFolder(ctx context.Context, folder string) ([]models.StorageEntry, error) {
	prefix := folderPrefix(folder)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	return folderEntries(folder, prefix, s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}))
}

// folderEntries drains a listing of prefix. A listing holding only the
// folder marker is an existing empty folder; an empty listing of a non-root
// prefix means the folder does not exist.
func folderEntries(folder, prefix string, objects <-chan minio.ObjectInfo) ([]models.StorageEntry, error) {
	found := false
	var entries []models.StorageEntry
	for obj := range objects {
		if obj.Err != nil {
			return nil, translateError("list_objects", folder, obj.Err)
		}
		found = true
		// Folder markers and common prefixes of nested folders.
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		entries = append(entries, models.StorageEntry{
			ID:       obj.Key,
			Name:     path.Base(obj.Key),
			Path:     "/" + obj.Key,
			Modified: obj.LastModified,
			Size:     obj.Size,
		})
	}

	if !found && prefix != "" {
		return nil, &storage.NotFoundError{Path: folder}
	}
	return entries, nil
}

func (s *ObjectStore) GetTemporaryLink(ctx context.Context, file string) (models.TemporaryLink, error) {
	issued := s.now()
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey(file), s.linkExpiry, url.Values{})
	if err != nil {
		return models.TemporaryLink{}, translateError("presign", file, err)
	}
	return models.TemporaryLink{URL: u.String(), ExpiresAt: issued.Add(s.linkExpiry)}, nil
}

func (s *ObjectStore) GetMetadata(ctx context.Context, p string) (models.Metadata, error) {
	prefix := folderPrefix(p)
	if prefix == "" {
		return models.Metadata{Kind: models.EntryKindFolder, Path: "/"}, nil
	}

	info, err := s.client.StatObject(ctx, s.bucket, objectKey(p), minio.StatObjectOptions{})
	if err == nil {
		return models.Metadata{
			Kind:     models.EntryKindFile,
			Name:     path.Base(info.Key),
			Path:     "/" + info.Key,
			Modified: info.LastModified,
			Size:     info.Size,
		}, nil
	}
	if !isNoSuchKey(err) {
		return models.Metadata{}, translateError("stat_object", p, err)
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	return folderMetadata(p, prefix, s.client.ListObjects(listCtx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, MaxKeys: 1}))
}

// folderMetadata reports prefix as a folder when the listing yields any key.
func folderMetadata(p, prefix string, objects <-chan minio.ObjectInfo) (models.Metadata, error) {
	for obj := range objects {
		if obj.Err != nil {
			return models.Metadata{}, translateError("list_objects", p, obj.Err)
		}
		name := strings.TrimSuffix(prefix, "/")
		return models.Metadata{
			Kind: models.EntryKindFolder,
			Name: path.Base(name),
			Path: "/" + name,
		}, nil
	}
	return models.Metadata{}, &storage.NotFoundError{Path: p}
}

func translateError(op, p string, err error) error {
	if isNoSuchKey(err) {
		return &storage.NotFoundError{Path: p}
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "" {
		return &storage.BackendError{Op: op, Path: p, Err: err}
	}
	return &storage.BackendError{Op: op, Path: p, StatusCode: resp.StatusCode, Message: resp.Code + ": " + resp.Message, Err: err}
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket"
}

// folderPrefix maps "/a/b" to the key prefix "a/b/"; the root maps to "".
func folderPrefix(folder string) string {
	key := objectKey(folder)
	if key == "" {
		return ""
	}
	return key + "/"
}

func objectKey(p string) string {
	return strings.Trim(strings.TrimSpace(p), "/")
}
