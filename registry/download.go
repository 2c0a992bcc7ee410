package registry

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Zip assembles the zip archive of a version's files. Entries keep
// their original bundle paths with no wrapping directory. The download
// counter bumps best-effort.
func (s *Service) Zip(ctx context.Context, slug, semver string) ([]byte, string, error) {
	skill, err := s.visibleSkill(ctx, slug)
	if err != nil {
		return nil, "", err
	}

	version, err := s.versionBySelector(ctx, skill, semver, "")
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range version.Files {
		content, err := s.blobs.Get(ctx, f.StorageID)
		if err != nil {
			_ = zw.Close()

			return nil, "", wrapServiceError(err, "archive file read")
		}

		w, err := zw.Create(f.Path)
		if err != nil {
			_ = zw.Close()

			return nil, "", wrapServiceError(err, "archive entry create")
		}
		if _, err := w.Write(content); err != nil {
			_ = zw.Close()

			return nil, "", wrapServiceError(err, "archive entry write")
		}
	}
	if err := zw.Close(); err != nil {
		return nil, "", wrapServiceError(err, "archive finalize")
	}

	if err := s.store.IncrementDownloads(ctx, skill.ID); err != nil {
		log.Warn().Err(err).Str("slug", slug).Msg("failed to increment download count")
	}

	name := fmt.Sprintf("%s-%s.zip", slug, version.Version)

	return buf.Bytes(), name, nil
}

// StoreBlob writes content into the object store under a fresh storage
// id and returns (storageID, sha256, size). Used by the inline
// multipart publish path; the upload-url flow uses StoreBlobAt.
func (s *Service) StoreBlob(ctx context.Context, content io.Reader) (string, string, int64, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", "", 0, wrapServiceError(err, "blob read")
	}

	sum := sha256.Sum256(data)
	id := s.newID()
	if err := s.blobs.Put(ctx, id, bytes.NewReader(data)); err != nil {
		return "", "", 0, wrapServiceError(err, "blob store")
	}

	return id, hex.EncodeToString(sum[:]), int64(len(data)), nil
}

// NewStorageID mints an opaque storage id for the upload-url flow.
func NewStorageID() string {
	return uuid.NewString()
}

// StoreBlobAt writes content under a storage id previously issued by
// the upload-url flow and returns (sha256, size).
func (s *Service) StoreBlobAt(
	ctx context.Context,
	id string,
	content io.Reader,
) (string, int64, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", 0, Errf(CodeInvalid, "malformed storage id")
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxBundleBytes+1))
	if err != nil {
		return "", 0, wrapServiceError(err, "upload read")
	}
	if int64(len(data)) > MaxBundleBytes {
		return "", 0, &ServiceError{
			Code:    CodeTooLarge,
			Message: "uploaded file exceeds the bundle size limit",
			Inner:   ErrBundleTooLarge,
		}
	}

	sum := sha256.Sum256(data)
	if err := s.blobs.Put(ctx, id, bytes.NewReader(data)); err != nil {
		return "", 0, wrapServiceError(err, "blob store")
	}

	return hex.EncodeToString(sum[:]), int64(len(data)), nil
}
