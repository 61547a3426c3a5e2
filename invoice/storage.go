package invoice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mmdatafocus/orderdesk_backend/config"
	"github.com/mmdatafocus/orderdesk_backend/utils"
)

// Storage persists rendered documents and returns the path stored on the order.
type Storage interface {
	Save(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}

type LocalStorage struct {
	Dir string
}

func (s LocalStorage) Save(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	path := filepath.Join(s.Dir, filepath.FromSlash(objectName))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	// Write then rename so readers never see a half-written file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return objectName, nil
}

type GCSStorage struct {
	Bucket string
}

func (s GCSStorage) Save(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	if err := utils.UploadBytesToGCS(ctx, objectName, data, contentType); err != nil {
		return "", err
	}
	return utils.GCSObjectURL(s.Bucket, objectName), nil
}

// NewStorageFromEnv picks the backend named by STORAGE_PROVIDER.
func NewStorageFromEnv() (Storage, error) {
	switch provider := utils.GetStorageProvider(); provider {
	case utils.StorageProviderLocal:
		return LocalStorage{Dir: config.InvoiceDir()}, nil
	case utils.StorageProviderGCS:
		bucket, err := utils.GetGCSBucket()
		if err != nil {
			return nil, err
		}
		return GCSStorage{Bucket: bucket}, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_PROVIDER %q", provider)
	}
}
