package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

// UploadResult identifies a stored blob: the public URL saved on the document
// row and the storage id needed to delete it later.
type UploadResult struct {
	URL      string
	PublicID string
}

// Uploader is the blob-store surface the document pipeline uses.
type Uploader interface {
	UploadDocument(ctx context.Context, userID, name string, data []byte) (*UploadResult, error)
	DeleteDocument(ctx context.Context, publicID string) error
}

// Cloudinary stores uploaded documents as raw assets under a per-user prefix.
type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinaryFromEnv returns a configured store or nil when CLOUDINARY_URL
// is unset.
func NewCloudinaryFromEnv() (*Cloudinary, error) {
	url := os.Getenv("CLOUDINARY_URL")
	if url == "" {
		return nil, nil
	}
	cld, err := cloudinary.NewFromURL(url)
	if err != nil {
		return nil, fmt.Errorf("cloudinary init: %w", err)
	}
	folder := os.Getenv("CLOUDINARY_FOLDER")
	if folder == "" {
		folder = "users-documents"
	}
	return &Cloudinary{cld: cld, folder: folder}, nil
}

func (c *Cloudinary) UploadDocument(ctx context.Context, userID, name string, data []byte) (*UploadResult, error) {
	publicID := fmt.Sprintf("%s/%s", userID, uuid.NewString())
	resp, err := c.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID:     publicID,
		Folder:       c.folder,
		ResourceType: "raw",
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	log.Printf("[STORAGE][upload] user=%s name=%s public_id=%s bytes=%d", userID, name, resp.PublicID, len(data))
	return &UploadResult{URL: resp.SecureURL, PublicID: resp.PublicID}, nil
}

func (c *Cloudinary) DeleteDocument(ctx context.Context, publicID string) error {
	if publicID == "" {
		return nil
	}
	_, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: "raw",
	})
	if err != nil {
		return fmt.Errorf("destroy %s: %w", publicID, err)
	}
	return nil
}
