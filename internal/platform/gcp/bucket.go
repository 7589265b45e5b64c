package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/iam"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/dawask/rag-backend/internal/logger"
)

type ObjectStorageMode string

const (
	ObjectStorageModeGCS         ObjectStorageMode = "gcs"
	ObjectStorageModeGCSEmulator ObjectStorageMode = "gcs-emulator"
)

type bucketConfig struct {
	name      string
	cdnDomain string
}

type BucketService interface {
	// UploadImage downscales, re-encodes and uploads a derived image under
	// a random key, returning its public URL.
	UploadImage(ctx context.Context, img image.Image) (string, error)
	UploadFile(ctx context.Context, key string, file io.Reader) error
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
	GetPublicURL(key string) string
	EnsureBucket(ctx context.Context) error
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	storageMode   ObjectStorageMode
	emulatorHost  string
	bucket        bucketConfig
	projectID     string
	publicBaseURL string
}

func NewBucketService(log *logger.Logger) (BucketService, error) {
	serviceLog := log.With("service", "BucketService")

	bucketName := os.Getenv("GCS_BUCKET_NAME")
	if bucketName == "" {
		return nil, fmt.Errorf("missing env var GCS_BUCKET_NAME")
	}
	cdnDomain := os.Getenv("GCS_CDN_DOMAIN")
	projectID := os.Getenv("GCS_PROJECT_ID")

	mode := ObjectStorageMode(strings.TrimSpace(strings.ToLower(os.Getenv("OBJECT_STORAGE_MODE"))))
	emulatorHost := strings.TrimRight(strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")), "/")
	if mode == "" {
		if emulatorHost != "" {
			mode = ObjectStorageModeGCSEmulator
		} else {
			mode = ObjectStorageModeGCS
		}
	}

	publicBaseURL, err := resolvePublicBaseURL(mode, emulatorHost)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	stClient, err := newStorageClientForMode(ctx, mode, emulatorHost)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog.Info(
		"Object storage initialized",
		"mode", mode,
		"emulator_host", emulatorHost,
		"public_base_url", publicBaseURL,
		"bucket", bucketName,
	)

	return &bucketService{
		log:           serviceLog,
		storageClient: stClient,
		storageMode:   mode,
		emulatorHost:  emulatorHost,
		bucket: bucketConfig{
			name:      bucketName,
			cdnDomain: cdnDomain,
		},
		projectID:     projectID,
		publicBaseURL: publicBaseURL,
	}, nil
}

func newStorageClientForMode(ctx context.Context, mode ObjectStorageMode, emulatorHost string) (*storage.Client, error) {
	switch mode {
	case ObjectStorageModeGCS:
		return storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
	case ObjectStorageModeGCSEmulator:
		_ = os.Setenv("STORAGE_EMULATOR_HOST", emulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, fmt.Errorf("unknown object storage mode: %s", mode)
	}
}

func resolvePublicBaseURL(mode ObjectStorageMode, emulatorHost string) (string, error) {
	raw := strings.TrimSpace(os.Getenv("OBJECT_STORAGE_PUBLIC_BASE_URL"))
	if raw != "" {
		parsed, parseErr := url.Parse(raw)
		if parseErr != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
			return "", fmt.Errorf(
				"invalid OBJECT_STORAGE_PUBLIC_BASE_URL=%q; expected absolute URL like http://localhost:4443",
				raw,
			)
		}
		return strings.TrimRight(raw, "/"), nil
	}
	if mode == ObjectStorageModeGCSEmulator {
		return emulatorHost, nil
	}
	return "", nil
}

// EnsureBucket creates the bucket if needed and grants public read once at
// startup. Policy changes are skipped in emulator mode.
func (bs *bucketService) EnsureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	bkt := bs.storageClient.Bucket(bs.bucket.name)
	_, err := bkt.Attrs(ctx)
	if errors.Is(err, storage.ErrBucketNotExist) {
		if err := bkt.Create(ctx, bs.projectID, nil); err != nil {
			return fmt.Errorf("failed to create bucket %q: %w", bs.bucket.name, err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to read bucket attrs for %q: %w", bs.bucket.name, err)
	}

	if bs.storageMode == ObjectStorageModeGCSEmulator {
		return nil
	}

	policy, err := bkt.IAM().Policy(ctx)
	if err != nil {
		return fmt.Errorf("failed to read bucket policy: %w", err)
	}
	const viewerRole = "roles/storage.objectViewer"
	if policy.HasRole(iam.AllUsers, viewerRole) {
		return nil
	}
	policy.Add(iam.AllUsers, viewerRole)
	if err := bkt.IAM().SetPolicy(ctx, policy); err != nil {
		return fmt.Errorf("failed to set public read policy: %w", err)
	}
	bs.log.Info("Public read policy granted", "bucket", bs.bucket.name)
	return nil
}

func (bs *bucketService) UploadImage(ctx context.Context, img image.Image) (string, error) {
	encoded, err := EncodeForVision(img)
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	key := uuid.New().String() + ".jpg"
	if err := bs.UploadFile(ctx, key, bytes.NewReader(encoded)); err != nil {
		return "", err
	}
	return bs.GetPublicURL(key), nil
}

func (bs *bucketService) UploadFile(ctx context.Context, key string, file io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := bs.storageClient.Bucket(bs.bucket.name).Object(key).NewWriter(ctx)
	if ct := contentTypeForKey(key); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (bs *bucketService) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := bs.storageClient.Bucket(bs.bucket.name).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS object %q: %w", key, err)
	}
	return rc, nil
}

func (bs *bucketService) GetPublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if bs.bucket.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", bs.bucket.cdnDomain, key)
	}
	if bs.storageMode == ObjectStorageModeGCSEmulator {
		if u := bs.publicEmulatorObjectMediaURL(bs.bucket.name, key); u != "" {
			return u
		}
	}
	if bs.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", bs.publicBaseURL, bs.bucket.name, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bs.bucket.name, key)
}

func (bs *bucketService) publicEmulatorObjectMediaURL(bucket, key string) string {
	base := strings.TrimRight(strings.TrimSpace(bs.publicBaseURL), "/")
	if base == "" {
		base = bs.emulatorHost
	}
	if base == "" {
		return ""
	}
	return fmt.Sprintf(
		"%s/storage/v1/b/%s/o/%s?alt=media",
		base,
		bucket,
		url.PathEscape(key),
	)
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if s == "" {
		return ""
	}
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return ""
	}
}
