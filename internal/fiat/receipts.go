package fiat

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ReceiptStore keeps uploaded receipt images and returns a reference to them.
type ReceiptStore interface {
	Save(ctx context.Context, filename string, body io.Reader) (string, error)
}

// DiskReceiptStore writes receipts under a directory, one file per upload.
type DiskReceiptStore struct {
	dir string
}

func NewDiskReceiptStore(dir string) (*DiskReceiptStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create receipt directory: %w", err)
	}
	return &DiskReceiptStore{dir: dir}, nil
}

// Save stores the body under a random name that keeps the original extension.
func (d *DiskReceiptStore) Save(ctx context.Context, filename string, body io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	f, err := os.OpenFile(filepath.Join(d.dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("failed to create receipt file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write receipt: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close receipt file: %w", err)
	}
	return "receipts/" + name, nil
}
