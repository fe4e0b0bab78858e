package auth

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// avatarNameLayout renders as ddMMyyyyHHmmss
const avatarNameLayout = "02012006150405"

var allowedAvatarExtensions = map[string]string{
	".png": "image/png",
	".jpg": "image/jpeg",
	".gif": "image/gif",
}

// ValidateAvatarFileName accepts png, jpg and gif files, case insensitive.
func ValidateAvatarFileName(name string) error {
	if _, ok := allowedAvatarExtensions[strings.ToLower(filepath.Ext(name))]; !ok {
		return ErrUnsupportedAvatarFormat
	}
	return nil
}

// AvatarContentType returns the mime type for an accepted avatar file name.
func AvatarContentType(name string) string {
	if ct, ok := allowedAvatarExtensions[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// AvatarObjectName builds media-<ddMMyyyyHHmmss>-<accountID>-<filename>.
func AvatarObjectName(now time.Time, accountID uuid.UUID, fileName string) string {
	base := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	return fmt.Sprintf("media-%s-%s-%s", now.Format(avatarNameLayout), accountID, base)
}

// FileAvatarStorage writes avatars to a local directory
type FileAvatarStorage struct {
	dir       string
	urlPrefix string
}

var _ AvatarStorage = (*FileAvatarStorage)(nil)

// NewFileAvatarStorage stores files under dir and returns references
// prefixed by urlPrefix.
func NewFileAvatarStorage(dir, urlPrefix string) *FileAvatarStorage {
	if urlPrefix == "" {
		urlPrefix = "/media"
	}
	return &FileAvatarStorage{
		dir:       dir,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
	}
}

func (s *FileAvatarStorage) Save(ctx context.Context, name string, content io.Reader, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create avatar directory")
	}

	name = filepath.Base(name)
	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create avatar file")
	}
	defer f.Close()

	var src io.Reader = content
	if size > 0 {
		src = io.LimitReader(content, size)
	}

	if _, err := io.Copy(f, src); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to write avatar file")
	}

	return path.Join(s.urlPrefix, name), nil
}
