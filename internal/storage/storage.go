package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Storage is the seam between submission intake and wherever raw document
// bytes actually live. DirectusStorage is the only implementation today;
// a future S3 or FTP backend would satisfy the same interface.
type Storage interface {
	// Store uploads content under name (attributed to supplier) and
	// returns an opaque location string that Retrieve can resolve later.
	Store(ctx context.Context, content []byte, name, supplier string) (string, error)
	// Retrieve fetches the bytes previously returned by Store at location.
	Retrieve(ctx context.Context, location string) ([]byte, error)
}

// DirectusStorage stores submitted documents as files in a Directus CMS,
// using the submissions folder as their home.
type DirectusStorage struct {
	client   *DirectusClient
	folderID string
	logger   *zap.Logger
}

// NewDirectusStorage wraps client into a Storage backed by folderID.
func NewDirectusStorage(client *DirectusClient, folderID string, logger *zap.Logger) *DirectusStorage {
	return &DirectusStorage{client: client, folderID: folderID, logger: logger}
}

func (s *DirectusStorage) Store(ctx context.Context, content []byte, name, supplier string) (string, error) {
	result, err := s.client.UploadFile(ctx, UploadFileParams{
		Filename:    name,
		Content:     content,
		FolderID:    s.folderID,
		Title:       fmt.Sprintf("%s submission: %s", supplier, name),
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s for %s: %w", name, supplier, err)
	}
	s.logger.Info("stored submission artifact",
		zap.String("supplier", supplier),
		zap.String("filename", name),
		zap.String("location", result.ID),
	)
	return result.ID, nil
}

func (s *DirectusStorage) Retrieve(ctx context.Context, location string) ([]byte, error) {
	content, err := s.client.DownloadFile(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("retrieving %s: %w", location, err)
	}
	return content, nil
}
