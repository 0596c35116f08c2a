package clients

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	defaultFilesDir    = "./documents"
	defaultFilesPrefix = "/files"
)

// StorageClient keeps rendered documents on local disk and serves them
// under PublicPrefix. It is the uploader used when S3 is disabled.
type StorageClient struct {
	BaseDir      string
	PublicPrefix string
	// BaseURL, when set, makes GetURL return absolute links.
	BaseURL string
}

func NewLocalStorage(baseDir, publicPrefix, baseURL string) (*StorageClient, error) {
	if baseDir == "" {
		baseDir = defaultFilesDir
	}
	if publicPrefix == "" {
		publicPrefix = defaultFilesPrefix
	}
	if !strings.HasPrefix(publicPrefix, "/") {
		publicPrefix = "/" + publicPrefix
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure storage dir %q: %w", baseDir, err)
	}

	return &StorageClient{
		BaseDir:      baseDir,
		PublicPrefix: strings.TrimSuffix(publicPrefix, "/"),
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Upload saves data and returns its public URL. Only the base name of
// objectPath survives; the customer directory is flattened away.
func (s *StorageClient) Upload(ctx context.Context, data []byte, objectPath, contentType string) (string, error) {
	saved, err := s.Save(ctx, objectPath, data)
	if err != nil {
		return "", err
	}
	return s.GetURL(saved), nil
}

// Save writes data under a unique "<id>_<name>" file and returns that name.
func (s *StorageClient) Save(ctx context.Context, fileName string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	saved := id + "_" + filepath.Base(fileName)

	path := filepath.Join(s.BaseDir, saved)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", saved, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize %s: %w", saved, err)
	}
	return saved, nil
}

// Path resolves a served file name inside BaseDir.
func (s *StorageClient) Path(fileName string) (string, error) {
	if fileName == "" || fileName != filepath.Base(fileName) || strings.HasPrefix(fileName, ".") {
		return "", fmt.Errorf("invalid file name %q", fileName)
	}
	return filepath.Join(s.BaseDir, fileName), nil
}

// OriginalName strips the unique prefix added by Save.
func OriginalName(saved string) string {
	if _, name, ok := strings.Cut(saved, "_"); ok {
		return name
	}
	return saved
}

// GetURL is BaseURL + PublicPrefix + "/" + fileName, or a relative link
// when no BaseURL is configured.
func (s *StorageClient) GetURL(fileName string) string {
	return s.BaseURL + s.PublicPrefix + "/" + fileName
}
