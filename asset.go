package deployer

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Asset is the processed file a deployer publishes. Implementations come
// from the processing pipeline; the deployer only reads it, except for the
// single SetOutputURL mutation performed after a successful deploy or
// lookup hit.
type Asset interface {
	// Filename returns the base name without its extension.
	Filename() string
	// Extension returns the extension without the leading dot, or "" when
	// the file has none.
	Extension() string
	Contents() ([]byte, error)
	FullPath() string
	ModTime() time.Time
	MD5() (string, error)
	SHA1() (string, error)
	SetOutputURL(url string)
}

// FileAsset adapts a file on disk to the Asset interface. Contents and
// digests are loaded on first use and memoised for the lifetime of the
// value, so digest-based triggers do not re-read the file per call.
type FileAsset struct {
	path    string
	name    string
	ext     string
	modTime time.Time

	loadOnce sync.Once
	contents []byte
	loadErr  error

	md5Hex  string
	sha1Hex string

	outputURL string
}

// NewFileAsset stats path and returns a FileAsset for it.
func NewFileAsset(path string) (*FileAsset, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("asset path is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat asset: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("asset %q is a directory", path)
	}

	base := filepath.Base(path)
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" {
		// Dotfiles such as ".htaccess" have no separate extension segment.
		name = base
		ext = ""
	}

	return &FileAsset{
		path:    path,
		name:    name,
		ext:     ext,
		modTime: info.ModTime(),
	}, nil
}

func (a *FileAsset) Filename() string {
	if a == nil {
		return ""
	}
	return a.name
}

func (a *FileAsset) Extension() string {
	if a == nil {
		return ""
	}
	return a.ext
}

func (a *FileAsset) FullPath() string {
	if a == nil {
		return ""
	}
	return a.path
}

func (a *FileAsset) ModTime() time.Time {
	if a == nil {
		return time.Time{}
	}
	return a.modTime
}

// Contents returns the file bytes, reading them at most once.
func (a *FileAsset) Contents() ([]byte, error) {
	if a == nil {
		return nil, errors.New("nil asset")
	}
	a.loadOnce.Do(func() {
		a.contents, a.loadErr = os.ReadFile(a.path)
	})
	if a.loadErr != nil {
		return nil, fmt.Errorf("read asset %q: %w", a.path, a.loadErr)
	}
	return a.contents, nil
}

// MD5 returns the hex MD5 digest of the asset contents.
func (a *FileAsset) MD5() (string, error) {
	if a == nil {
		return "", errors.New("nil asset")
	}
	if a.md5Hex != "" {
		return a.md5Hex, nil
	}
	data, err := a.Contents()
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	a.md5Hex = hex.EncodeToString(sum[:])
	return a.md5Hex, nil
}

// SHA1 returns the hex SHA-1 digest of the asset contents.
func (a *FileAsset) SHA1() (string, error) {
	if a == nil {
		return "", errors.New("nil asset")
	}
	if a.sha1Hex != "" {
		return a.sha1Hex, nil
	}
	data, err := a.Contents()
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(data)
	a.sha1Hex = hex.EncodeToString(sum[:])
	return a.sha1Hex, nil
}

// SetOutputURL records the public URL the asset was deployed to.
func (a *FileAsset) SetOutputURL(url string) {
	if a == nil {
		return
	}
	a.outputURL = url
}

// OutputURL returns the URL set by the last successful deploy or lookup,
// or "" when the asset has not been deployed through this process.
func (a *FileAsset) OutputURL() string {
	if a == nil {
		return ""
	}
	return a.outputURL
}
