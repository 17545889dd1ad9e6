// Package bundle builds signed tar.zst archives of processed assets and
// replays them through the deployer on another machine. Bundles let an
// air-gapped build host hand its assets to an operator who deploys them
// from a network-connected one.
package bundle

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

const (
	manifestFileName = "manifest.yaml"
	assetsTarPrefix  = "assets"
	manifestVersion  = "1"
)

// Build assembles a signed bundle from the provided directory and writes
// the tar.zst archive to Output.
func Build(ctx context.Context, cfg BuildConfig) (*Manifest, error) {
	if cfg.AssetsDir == "" {
		return nil, errors.New("assets directory is required")
	}
	if cfg.Output == "" {
		return nil, errors.New("output path is required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("signer is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(cfg.AssetsDir)
	if err != nil {
		return nil, fmt.Errorf("stat assets dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("assets dir %q is not a directory", cfg.AssetsDir)
	}

	entries, err := collectAssets(ctx, cfg.AssetsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("no assets found to bundle")
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})

	manifest := &Manifest{
		Version:          manifestVersion,
		CreatedAt:        cfg.Now().UTC().Truncate(time.Second),
		Signer:           cfg.Signer.Recipient(),
		SigningPublicKey: cfg.Signer.PublicKeyBase64(),
		Assets:           entries,
	}

	payload, err := manifest.SigningBytes()
	if err != nil {
		return nil, fmt.Errorf("marshal manifest for signing: %w", err)
	}
	sig, err := cfg.Signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign manifest: %w", err)
	}
	manifest.Signature = sig

	manifestBytes, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	if err := writeBundle(cfg.Output, manifestBytes, cfg.AssetsDir, entries); err != nil {
		return nil, err
	}

	fmt.Fprintf(cfg.Stdout, "wrote bundle %s (%d assets)\n", cfg.Output, len(entries))
	return manifest, nil
}

func collectAssets(ctx context.Context, root string) ([]ManifestAsset, error) {
	var assets []ManifestAsset
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relative path for %q: %w", path, err)
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %q: %w", rel, err)
		}

		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %q: %w", rel, err)
		}
		hash := sha256.New()
		size, err := io.Copy(hash, file)
		file.Close()
		if err != nil {
			return fmt.Errorf("hash %q: %w", rel, err)
		}

		assets = append(assets, ManifestAsset{
			Path:    rel,
			Size:    size,
			SHA256:  hex.EncodeToString(hash.Sum(nil)),
			ModTime: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assets, nil
}

func writeBundle(output string, manifest []byte, assetsDir string, entries []ManifestAsset) error {
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer file.Close()

	encoder, err := zstd.NewWriter(file)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	defer encoder.Close()

	tw := tar.NewWriter(encoder)
	defer tw.Close()

	manifestHeader := &tar.Header{
		Name:     manifestFileName,
		Mode:     0o644,
		Size:     int64(len(manifest)),
		ModTime:  time.Now().UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(manifestHeader); err != nil {
		return fmt.Errorf("write manifest header: %w", err)
	}
	if _, err := tw.Write(manifest); err != nil {
		return fmt.Errorf("write manifest body: %w", err)
	}

	for _, entry := range entries {
		fullPath := filepath.Join(assetsDir, filepath.FromSlash(entry.Path))
		src, err := os.Open(fullPath)
		if err != nil {
			return fmt.Errorf("open %q: %w", entry.Path, err)
		}

		header := &tar.Header{
			Name:     filepath.ToSlash(filepath.Join(assetsTarPrefix, entry.Path)),
			Mode:     0o644,
			Size:     entry.Size,
			ModTime:  time.Unix(entry.ModTime, 0),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(header); err != nil {
			src.Close()
			return fmt.Errorf("write header for %q: %w", entry.Path, err)
		}
		if _, err := io.Copy(tw, src); err != nil {
			src.Close()
			return fmt.Errorf("copy %q: %w", entry.Path, err)
		}
		src.Close()
	}

	return nil
}

// Open reads a bundle, verifies its manifest signature with signer, and
// checks every asset against its recorded size and digest.
func Open(ctx context.Context, path string, signer *Signer) (*Manifest, map[string][]byte, error) {
	if path == "" {
		return nil, nil, errors.New("bundle path is required")
	}
	if signer == nil {
		return nil, nil, errors.New("signer is required")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open bundle: %w", err)
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer decoder.Close()

	tr := tar.NewReader(decoder)

	var (
		manifestBytes []byte
		contents      = map[string][]byte{}
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read tar entry: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.ToSlash(filepath.Clean(header.Name))
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return nil, nil, fmt.Errorf("invalid entry path %q", header.Name)
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, nil, fmt.Errorf("read %q: %w", name, err)
		}

		if name == manifestFileName {
			manifestBytes = data
			continue
		}
		contents[name] = data
	}

	if len(manifestBytes) == 0 {
		return nil, nil, errors.New("bundle missing manifest.yaml")
	}

	var manifest Manifest
	if err := yaml.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	if manifest.Version != manifestVersion {
		return nil, nil, fmt.Errorf("unsupported manifest version %q", manifest.Version)
	}
	if manifest.Signature == "" {
		return nil, nil, errors.New("manifest missing signature")
	}

	payload, err := manifest.SigningBytes()
	if err != nil {
		return nil, nil, fmt.Errorf("marshal manifest for verification: %w", err)
	}
	if err := signer.Verify(payload, manifest.Signature, manifest.SigningPublicKey); err != nil {
		return nil, nil, fmt.Errorf("verify manifest signature: %w", err)
	}

	assets := make(map[string][]byte, len(manifest.Assets))
	for _, entry := range manifest.Assets {
		tarPath := filepath.ToSlash(filepath.Join(assetsTarPrefix, filepath.Clean(entry.Path)))
		data, ok := contents[tarPath]
		if !ok {
			return nil, nil, fmt.Errorf("asset %q missing from archive", entry.Path)
		}
		if int64(len(data)) != entry.Size {
			return nil, nil, fmt.Errorf("size mismatch for %q: expected %d got %d", entry.Path, entry.Size, len(data))
		}
		sum := sha256.Sum256(data)
		if !strings.EqualFold(hex.EncodeToString(sum[:]), entry.SHA256) {
			return nil, nil, fmt.Errorf("sha256 mismatch for %q", entry.Path)
		}
		assets[entry.Path] = data
	}

	return &manifest, assets, nil
}

// Deploy verifies a bundle and feeds each of its assets through the
// deployer, skipping the ones the lookup reports as already deployed.
func Deploy(ctx context.Context, cfg DeployConfig) (*Manifest, error) {
	if cfg.Deployer == nil {
		return nil, errors.New("deployer is required")
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}

	manifest, assets, err := Open(ctx, cfg.BundlePath, cfg.Signer)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(cfg.Stdout, "verified manifest signed at %s\n", manifest.CreatedAt.Format(time.RFC3339))

	for _, entry := range manifest.Assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		asset := newBundleAsset(cfg.BundlePath, entry, assets[entry.Path])

		if url, ok := cfg.Deployer.Lookup(ctx, asset); ok {
			fmt.Fprintf(cfg.Stdout, "skipped %s (already deployed at %s)\n", entry.Path, url)
			continue
		}

		url, err := cfg.Deployer.Deploy(ctx, asset)
		if err != nil {
			return nil, fmt.Errorf("deploy %q: %w", entry.Path, err)
		}
		fmt.Fprintf(cfg.Stdout, "deployed %s -> %s\n", entry.Path, url)
	}

	return manifest, nil
}
