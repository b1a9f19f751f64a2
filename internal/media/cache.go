// Package media downloads token artwork and stores it under a
// content-addressed filename so identical media is kept once.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/chainfund/custodian/internal/adapter"
	"github.com/chainfund/custodian/internal/domain"
	"github.com/chainfund/custodian/internal/logger"
)

// allowedExtensions is the media type allow-list. Anything else is refused
// rather than stored.
var allowedExtensions = map[string]struct{}{
	"png":  {},
	"jpeg": {},
	"jpg":  {},
	"svg":  {},
	"gif":  {},
	"mp4":  {},
	"webp": {},
	"mov":  {},
	"psd":  {},
	"html": {},
}

// CacheConfig holds configuration for the media cache
type CacheConfig struct {
	// Dir is the root directory cached files are written to
	Dir string
	// IPFSGateways are tried in parallel when resolving ipfs:// references
	IPFSGateways []string
	// MaxDownloadSize refuses files larger than this many bytes
	MaxDownloadSize int64
}

// Result describes a cached media file
type Result struct {
	// StoredAs is the content-hash filename within the cache directory
	StoredAs string
	// MimeType is the detected media type
	MimeType string
}

// Cache fetches media references and stores them content-addressed
type Cache struct {
	config     CacheConfig
	httpClient adapter.HTTPClient
	fs         adapter.FileSystem
}

// NewCache creates a media cache
func NewCache(config CacheConfig, httpClient adapter.HTTPClient, fs adapter.FileSystem) *Cache {
	return &Cache{
		config:     config,
		httpClient: httpClient,
		fs:         fs,
	}
}

// Fetch resolves a media reference, downloads it and stores it under its
// content hash. Fetching the same content twice is a no-op.
func (c *Cache) Fetch(ctx context.Context, uri string) (*Result, error) {
	data, err := c.payload(ctx, uri)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty media payload", domain.ErrUnsupportedMedia)
	}
	if c.config.MaxDownloadSize > 0 && int64(len(data)) > c.config.MaxDownloadSize {
		return nil, fmt.Errorf("%w: media exceeds size limit (%d bytes)", domain.ErrUnsupportedMedia, len(data))
	}

	detected := mimetype.Detect(data)
	ext := strings.TrimPrefix(detected.Extension(), ".")
	if _, ok := allowedExtensions[ext]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedMedia, detected.String())
	}

	sum := sha256.Sum256(data)
	filename := hex.EncodeToString(sum[:]) + "." + ext
	path := filepath.Join(c.config.Dir, filename)

	if c.fs.Exists(path) {
		logger.DebugCtx(ctx, "Media already cached", zap.String("stored_as", filename))
		return &Result{StoredAs: filename, MimeType: detected.String()}, nil
	}

	if err := c.fs.MkdirAll(c.config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := c.fs.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write cached media: %w", err)
	}

	logger.InfoCtx(ctx, "Cached media",
		zap.String("stored_as", filename),
		zap.String("mime_type", detected.String()),
		zap.Int("size", len(data)),
	)
	return &Result{StoredAs: filename, MimeType: detected.String()}, nil
}

// payload resolves the reference and returns the raw bytes
func (c *Cache) payload(ctx context.Context, uri string) ([]byte, error) {
	switch {
	case strings.HasPrefix(uri, "data:"):
		return decodeDataURI(uri)
	case strings.HasPrefix(uri, "ipfs://"):
		cid := strings.TrimPrefix(uri, "ipfs://")
		gatewayURL, err := findWorkingIPFSGateway(ctx, c.httpClient, cid, c.config.IPFSGateways)
		if err != nil {
			return nil, err
		}
		return c.httpClient.GetBytes(ctx, gatewayURL, nil)
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		// Re-route gateway URLs through our own gateway set
		if cid, ok := ipfsPath(uri); ok {
			gatewayURL, err := findWorkingIPFSGateway(ctx, c.httpClient, cid, c.config.IPFSGateways)
			if err == nil {
				return c.httpClient.GetBytes(ctx, gatewayURL, nil)
			}
		}
		return c.httpClient.GetBytes(ctx, uri, nil)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme in %q", domain.ErrUnsupportedMedia, uri)
	}
}

// ipfsPath extracts the CID path from an IPFS gateway URL
func ipfsPath(rawurl string) (string, bool) {
	parts := strings.SplitN(rawurl, "/ipfs/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// decodeDataURI decodes an RFC 2397 data URI. Both base64 and
// percent-encoded text payloads are supported.
func decodeDataURI(uri string) ([]byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, fmt.Errorf("%w: not a data URI", domain.ErrUnsupportedMedia)
	}

	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return nil, fmt.Errorf("%w: malformed data URI", domain.ErrUnsupportedMedia)
	}

	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base64 payload: %v", domain.ErrUnsupportedMedia, err)
		}
		return data, nil
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid data URI payload: %v", domain.ErrUnsupportedMedia, err)
	}
	return []byte(decoded), nil
}
