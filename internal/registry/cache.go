package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"nanochatd/internal/backend"
	"nanochatd/internal/common/fsutil"
)

// ErrIntegrity marks a cached artifact that failed verification.
var ErrIntegrity = errors.New("artifact integrity check failed")

// Verification is the outcome of a successful Verify.
type Verification struct {
	Path   string
	Size   int64
	SHA256 string
	// Expected is the digest the file was checked against; empty when only
	// the file structure could be checked.
	Expected string
}

// Verify checks a model artifact. The content digest is compared with want
// when set, otherwise with the content-addressed blob the hub cache links the
// file to. GGUF files must also parse.
func (f *Fetcher) Verify(ctx context.Context, path, want string) (Verification, error) {
	p, ok := fsutil.IsFile(path)
	if !ok {
		return Verification{}, fmt.Errorf("%w: %s is not a regular file", ErrIntegrity, path)
	}
	fi, err := os.Stat(p)
	if err != nil {
		return Verification{}, err
	}
	v := Verification{Path: p, Size: fi.Size(), Expected: strings.ToLower(want)}
	if v.Size == 0 {
		return v, fmt.Errorf("%w: %s is empty", ErrIntegrity, p)
	}
	if v.Expected == "" {
		v.Expected = blobDigest(p)
	}
	if v.SHA256, err = fileSHA256(ctx, p); err != nil {
		return v, err
	}
	if v.Expected != "" && v.SHA256 != v.Expected {
		return v, fmt.Errorf("%w: %s sha256 %s, want %s", ErrIntegrity, p, v.SHA256, v.Expected)
	}
	if strings.EqualFold(filepath.Ext(p), ".gguf") {
		if _, err := backend.ReadGGUFMetadata(p); err != nil {
			return v, fmt.Errorf("%w: %v", ErrIntegrity, err)
		}
	}
	f.opts.Logger.Info().Str("path", p).Int64("bytes", v.Size).Str("sha256", v.SHA256).
		Bool("digest_checked", v.Expected != "").Msg("artifact verified")
	return v, nil
}

// blobDigest returns the sha256 a hub snapshot file is stored under, or "".
// Large files live in blobs/<sha256>; small ones use a git hash and are
// skipped.
func blobDigest(path string) string {
	target, err := filepath.EvalSymlinks(path)
	if err != nil || filepath.Base(filepath.Dir(target)) != "blobs" {
		return ""
	}
	name := filepath.Base(target)
	if len(name) != sha256.Size*2 {
		return ""
	}
	if _, err := hex.DecodeString(name); err != nil {
		return ""
	}
	return strings.ToLower(name)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func fileSHA256(ctx context.Context, path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fh.Close()
	h := sha256.New()
	if _, err := io.Copy(h, ctxReader{ctx: ctx, r: fh}); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CacheDir is the expanded cache directory.
func (f *Fetcher) CacheDir() (string, error) {
	dir, err := fsutil.ExpandHome(f.opts.CacheDir)
	if err != nil {
		return "", err
	}
	return filepath.Clean(dir), nil
}

// repoCacheDir is where the hub cache keeps one repository.
func repoCacheDir(root, repoID string) string {
	return filepath.Join(root, "models--"+strings.ReplaceAll(repoID, "/", "--"))
}

// CacheSize sums the regular files under the cache directory, or under one
// repository when repoID is set. A missing cache is empty.
func (f *Fetcher) CacheSize(repoID string) (int64, error) {
	root, err := f.CacheDir()
	if err != nil {
		return 0, err
	}
	if repoID != "" {
		root = repoCacheDir(root, repoID)
	}
	return dirSize(root)
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}

// Clean removes cached artifacts, for one repository when repoID is set and
// otherwise everything inside the cache directory. It returns the bytes
// freed.
func (f *Fetcher) Clean(repoID string) (int64, error) {
	root, err := f.CacheDir()
	if err != nil {
		return 0, err
	}
	if home, _ := os.UserHomeDir(); root == "" || root == string(filepath.Separator) || root == "." || root == home {
		return 0, fmt.Errorf("refusing to clean cache dir %q", root)
	}
	targets := []string{repoCacheDir(root, repoID)}
	if repoID == "" {
		entries, err := os.ReadDir(root)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return 0, nil
			}
			return 0, err
		}
		targets = targets[:0]
		for _, e := range entries {
			targets = append(targets, filepath.Join(root, e.Name()))
		}
	}
	var freed int64
	for _, t := range targets {
		n, err := dirSize(t)
		if err != nil {
			return freed, err
		}
		if err := os.RemoveAll(t); err != nil {
			return freed, fmt.Errorf("remove %s: %w", t, err)
		}
		freed += n
	}
	f.opts.Logger.Info().Str("dir", root).Str("repo", repoID).Int64("bytes", freed).Msg("cache cleaned")
	return freed, nil
}
