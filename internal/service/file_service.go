package service

import (
	"context"
	"fmt"
	"path"
	"time"

	"delivery-service/internal/models"
	"delivery-service/internal/objectstore"
	"delivery-service/internal/store"
	"delivery-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FileService manages the upload side of product files: registering
// assets, minting upload URLs, and integrity checks.
type FileService struct {
	store     *store.Store
	gateway   objectstore.Gateway
	uploadTTL time.Duration
	logger    *zap.Logger
}

// NewFileService creates a new file service
func NewFileService(store *store.Store, gateway objectstore.Gateway, uploadTTL time.Duration) *FileService {
	return &FileService{
		store:     store,
		gateway:   gateway,
		uploadTTL: uploadTTL,
		logger:    util.GetLogger(),
	}
}

// RegisterUploadRequest describes a file about to be uploaded
type RegisterUploadRequest struct {
	Name        string `json:"name" binding:"required"`
	Size        int64  `json:"size" binding:"required,min=1"`
	ContentType string `json:"content_type"`
}

// UploadSlot is a registered asset plus the URL to PUT its content to
type UploadSlot struct {
	Asset     *models.FileAsset `json:"asset"`
	UploadURL string            `json:"upload_url"`
}

// RegisterUpload allocates a storage key for a product file, records the
// asset, and returns a presigned upload URL
func (fs *FileService) RegisterUpload(ctx context.Context, productID int64, req *RegisterUploadRequest) (*UploadSlot, error) {
	ctx, span := util.StartSpan(ctx, "FileService.RegisterUpload")
	defer span.End()

	if _, err := fs.store.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}

	// path.Base strips any directory components a client sneaks into
	// the filename; the uuid keeps keys collision-free across re-uploads
	// of the same name.
	name := path.Base(req.Name)
	storageKey := fmt.Sprintf("products/%d/%s/%s", productID, uuid.New().String(), name)

	asset := &models.FileAsset{
		ProductID:   productID,
		StorageKey:  storageKey,
		Name:        name,
		Size:        req.Size,
		ContentType: req.ContentType,
	}

	if err := fs.store.CreateFileAsset(ctx, asset); err != nil {
		return nil, fmt.Errorf("failed to register file asset: %w", err)
	}

	uploadURL, err := fs.gateway.PresignedUploadURL(ctx, storageKey, fs.uploadTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	fs.logger.Info("File upload registered",
		zap.Int64("product_id", productID),
		zap.Int64("asset_id", asset.ID),
		zap.String("storage_key", storageKey))

	return &UploadSlot{Asset: asset, UploadURL: uploadURL}, nil
}

// VerifyFile checks that the asset's object actually exists in storage
func (fs *FileService) VerifyFile(ctx context.Context, fileID int64) (*models.FileAsset, bool, error) {
	asset, err := fs.store.GetFileAssetByID(ctx, fileID)
	if err != nil {
		return nil, false, err
	}

	exists, err := fs.gateway.Exists(ctx, asset.StorageKey)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return asset, exists, nil
}

// DeleteFile removes the object and its registry row
func (fs *FileService) DeleteFile(ctx context.Context, fileID int64) error {
	asset, err := fs.store.GetFileAssetByID(ctx, fileID)
	if err != nil {
		return err
	}

	if err := fs.gateway.Remove(ctx, asset.StorageKey); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if err := fs.store.DeleteFileAsset(ctx, fileID); err != nil {
		return fmt.Errorf("failed to delete file asset: %w", err)
	}

	fs.logger.Info("File asset deleted",
		zap.Int64("asset_id", fileID),
		zap.String("storage_key", asset.StorageKey))
	return nil
}
