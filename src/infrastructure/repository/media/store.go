package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	domainErrors "go-wa-campaign-api/src/domain/errors"
	logger "go-wa-campaign-api/src/infrastructure/logger"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/gabriel-vasile/mimetype"
	"github.com/h2non/filetype"
	"go.uber.org/zap"
)

// Store keeps uploaded images on the local filesystem under Dir
type Store struct {
	Dir      string
	MaxBytes int64
	Logger   *logger.Logger
}

func NewStore(dir string, maxBytes int64, loggerInstance *logger.Logger) *Store {
	return &Store{Dir: dir, MaxBytes: maxBytes, Logger: loggerInstance}
}

// SaveImage writes data under name plus the extension of its sniffed type and
// returns the relative path it was stored at. Anything that is not an image is
// rejected.
func (s *Store) SaveImage(name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", domainErrors.NewAppError(errors.New("image is empty"), domainErrors.ValidationError)
	}
	if s.MaxBytes > 0 && int64(len(data)) > s.MaxBytes {
		return "", domainErrors.NewAppError(fmt.Errorf("image exceeds %d bytes", s.MaxBytes), domainErrors.ValidationError)
	}
	if !filetype.IsImage(data) {
		return "", domainErrors.NewAppError(errors.New("file is not an image"), domainErrors.ValidationError)
	}

	relative := name + mimetype.Detect(data).Extension()
	full, err := securejoin.SecureJoin(s.Dir, relative)
	if err != nil {
		return "", domainErrors.NewAppError(err, domainErrors.ValidationError)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		s.Logger.Error("Error creating media directory", zap.Error(err), zap.String("path", full))
		return "", domainErrors.NewAppErrorWithType(domainErrors.UnknownError)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		s.Logger.Error("Error writing media file", zap.Error(err), zap.String("path", full))
		return "", domainErrors.NewAppErrorWithType(domainErrors.UnknownError)
	}
	s.Logger.Info("Media file stored", zap.String("path", relative), zap.Int("bytes", len(data)))
	return relative, nil
}

// Read returns a stored file and its sniffed MIME type. Paths cannot escape Dir.
func (s *Store) Read(relative string) ([]byte, string, error) {
	full, err := securejoin.SecureJoin(s.Dir, relative)
	if err != nil {
		return nil, "", domainErrors.NewAppError(err, domainErrors.ValidationError)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", domainErrors.NewAppErrorWithType(domainErrors.NotFound)
		}
		s.Logger.Error("Error reading media file", zap.Error(err), zap.String("path", full))
		return nil, "", domainErrors.NewAppErrorWithType(domainErrors.UnknownError)
	}
	return data, mimetype.Detect(data).String(), nil
}
