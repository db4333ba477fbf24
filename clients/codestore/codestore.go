package codestore

import (
	"context"
	"fmt"
	"log"
	"path"

	"github.com/spf13/afero"
)

// Client is a file-backed code store. The backing filesystem is pluggable so
// tests run against an in-memory Fs while production mounts a persistent
// volume (or an object-store FUSE mount) at the root directory.
type Client struct {
	fs   afero.Fs
	root string
}

func NewClient(fs afero.Fs, root string) *Client {
	return &Client{fs: fs, root: root}
}

func (c *Client) Put(ctx context.Context, filePath string, contents []byte) (string, error) {
	location := path.Join(c.root, filePath)

	if err := c.fs.MkdirAll(path.Dir(location), 0o755); err != nil {
		return "", fmt.Errorf("failed to create code store directory: %w", err)
	}

	if err := afero.WriteFile(c.fs, location, contents, 0o644); err != nil {
		return "", fmt.Errorf("failed to write code payload: %w", err)
	}

	log.Printf("📋 Stored code payload at %s (%d bytes)", location, len(contents))
	return location, nil
}

func (c *Client) Get(ctx context.Context, location string) ([]byte, error) {
	contents, err := afero.ReadFile(c.fs, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read code payload at %s: %w", location, err)
	}
	return contents, nil
}
