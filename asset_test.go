package deployer

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func writeTempAsset(t *testing.T, name string, contents []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("write temp asset: %v", err)
	}
	return path
}

func TestNewFileAssetSplitsNameAndExtension(t *testing.T) {
	tests := []struct {
		file     string
		wantName string
		wantExt  string
	}{
		{"logo.png", "logo", "png"},
		{"app.min.js", "app.min", "js"},
		{"LICENSE", "LICENSE", ""},
		{".htaccess", ".htaccess", ""},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			path := writeTempAsset(t, tt.file, []byte("contents"))

			asset, err := NewFileAsset(path)
			if err != nil {
				t.Fatalf("NewFileAsset: %v", err)
			}
			if asset.Filename() != tt.wantName {
				t.Fatalf("Filename() = %q, want %q", asset.Filename(), tt.wantName)
			}
			if asset.Extension() != tt.wantExt {
				t.Fatalf("Extension() = %q, want %q", asset.Extension(), tt.wantExt)
			}
			if asset.FullPath() != path {
				t.Fatalf("FullPath() = %q, want %q", asset.FullPath(), path)
			}
		})
	}
}

func TestNewFileAssetRejectsMissingAndDirectories(t *testing.T) {
	if _, err := NewFileAsset(filepath.Join(t.TempDir(), "absent.css")); err == nil {
		t.Fatal("NewFileAsset accepted a missing file")
	}
	if _, err := NewFileAsset(t.TempDir()); err == nil {
		t.Fatal("NewFileAsset accepted a directory")
	}
	if _, err := NewFileAsset("  "); err == nil {
		t.Fatal("NewFileAsset accepted a blank path")
	}
}

func TestFileAssetDigests(t *testing.T) {
	contents := []byte("html, body { margin: 0 }")
	path := writeTempAsset(t, "reset.css", contents)

	asset, err := NewFileAsset(path)
	if err != nil {
		t.Fatalf("NewFileAsset: %v", err)
	}

	md5Sum := md5.Sum(contents)
	gotMD5, err := asset.MD5()
	if err != nil {
		t.Fatalf("MD5: %v", err)
	}
	if want := hex.EncodeToString(md5Sum[:]); gotMD5 != want {
		t.Fatalf("MD5() = %q, want %q", gotMD5, want)
	}

	sha1Sum := sha1.Sum(contents)
	gotSHA1, err := asset.SHA1()
	if err != nil {
		t.Fatalf("SHA1: %v", err)
	}
	if want := hex.EncodeToString(sha1Sum[:]); gotSHA1 != want {
		t.Fatalf("SHA1() = %q, want %q", gotSHA1, want)
	}
}

func TestFileAssetContentsSurviveDeletion(t *testing.T) {
	path := writeTempAsset(t, "app.js", []byte("let x = 1"))

	asset, err := NewFileAsset(path)
	if err != nil {
		t.Fatalf("NewFileAsset: %v", err)
	}
	if _, err := asset.Contents(); err != nil {
		t.Fatalf("Contents: %v", err)
	}

	// Contents are memoised on first read; the pipeline may clean up the
	// build directory before the deployer is done with the asset.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	data, err := asset.Contents()
	if err != nil {
		t.Fatalf("Contents after removal: %v", err)
	}
	if string(data) != "let x = 1" {
		t.Fatalf("Contents = %q", data)
	}
}

func TestFileAssetOutputURL(t *testing.T) {
	asset, err := NewFileAsset(writeTempAsset(t, "logo.png", []byte{0x89}))
	if err != nil {
		t.Fatalf("NewFileAsset: %v", err)
	}
	if asset.OutputURL() != "" {
		t.Fatalf("OutputURL() = %q before deploy", asset.OutputURL())
	}
	asset.SetOutputURL("https://mybucket.s3.amazonaws.com/logo_1.png")
	if asset.OutputURL() != "https://mybucket.s3.amazonaws.com/logo_1.png" {
		t.Fatalf("OutputURL() = %q", asset.OutputURL())
	}
}
