package bundle

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"path"
	"strings"
	"time"
)

// bundleAsset adapts an extracted bundle entry to the deployer's Asset
// interface. Contents live in memory and ModTime comes from the manifest,
// so mtime-triggered object keys match the ones computed on the build
// host.
type bundleAsset struct {
	bundlePath string
	entryPath  string
	name       string
	ext        string
	modTime    time.Time
	contents   []byte

	md5Hex    string
	sha1Hex   string
	outputURL string
}

func newBundleAsset(bundlePath string, entry ManifestAsset, contents []byte) *bundleAsset {
	base := path.Base(entry.Path)
	ext := strings.TrimPrefix(path.Ext(base), ".")
	name := strings.TrimSuffix(base, path.Ext(base))
	if name == "" {
		name = base
		ext = ""
	}

	return &bundleAsset{
		bundlePath: bundlePath,
		entryPath:  entry.Path,
		name:       name,
		ext:        ext,
		modTime:    time.Unix(entry.ModTime, 0),
		contents:   contents,
	}
}

func (a *bundleAsset) Filename() string  { return a.name }
func (a *bundleAsset) Extension() string { return a.ext }

// FullPath labels the asset for logs and errors; the bytes never touch
// the local filesystem.
func (a *bundleAsset) FullPath() string {
	return a.bundlePath + "!" + a.entryPath
}

func (a *bundleAsset) ModTime() time.Time { return a.modTime }

func (a *bundleAsset) Contents() ([]byte, error) {
	if a.contents == nil {
		return nil, errors.New("bundle asset has no contents")
	}
	return a.contents, nil
}

func (a *bundleAsset) MD5() (string, error) {
	if a.md5Hex == "" {
		data, err := a.Contents()
		if err != nil {
			return "", err
		}
		sum := md5.Sum(data)
		a.md5Hex = hex.EncodeToString(sum[:])
	}
	return a.md5Hex, nil
}

func (a *bundleAsset) SHA1() (string, error) {
	if a.sha1Hex == "" {
		data, err := a.Contents()
		if err != nil {
			return "", err
		}
		sum := sha1.Sum(data)
		a.sha1Hex = hex.EncodeToString(sum[:])
	}
	return a.sha1Hex, nil
}

func (a *bundleAsset) SetOutputURL(url string) { a.outputURL = url }

// OutputURL returns the URL recorded by the deployer, or "" before any
// deploy or lookup hit.
func (a *bundleAsset) OutputURL() string { return a.outputURL }
