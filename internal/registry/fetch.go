package registry

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/gomlx/go-huggingface/hub"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"nanochatd/internal/backend"
	"nanochatd/internal/common/fsutil"
)

// DefaultCacheDir is where hub artifacts land unless configured otherwise.
const DefaultCacheDir = "~/.cache/nanochatd"

// FetchOptions configure a Fetcher.
type FetchOptions struct {
	CacheDir string
	Revision string
	Token    string
	// Progress prints a download bar on stderr.
	Progress bool
	Logger   zerolog.Logger
}

// Fetcher downloads model artifacts from the Hugging Face hub. Concurrent
// requests for the same file share one download.
type Fetcher struct {
	opts  FetchOptions
	group singleflight.Group
	// download is replaced in tests.
	download func(repo *hub.Repo, file string) (string, error)
	// list is replaced in tests.
	list func(repo *hub.Repo) ([]string, error)
}

// NewFetcher returns a fetcher rooted at opts.CacheDir.
func NewFetcher(opts FetchOptions) *Fetcher {
	if opts.CacheDir == "" {
		opts.CacheDir = DefaultCacheDir
	}
	if opts.Revision == "" {
		opts.Revision = "main"
	}
	return &Fetcher{
		opts:     opts,
		download: func(r *hub.Repo, f string) (string, error) { return r.DownloadFile(f) },
		list:     listRepo,
	}
}

func listRepo(r *hub.Repo) ([]string, error) {
	var files []string
	for name, err := range r.IterFileNames() {
		if err != nil {
			return nil, err
		}
		files = append(files, name)
	}
	return files, nil
}

// Repo returns a hub handle for id using the fetcher's cache, revision and
// token.
func (f *Fetcher) Repo(id string) (*hub.Repo, error) {
	dir, err := fsutil.EnsureDir(f.opts.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("cache dir: %w", err)
	}
	r := hub.New(id).WithCacheDir(dir).WithRevision(f.opts.Revision).WithProgressBar(f.opts.Progress)
	if f.opts.Token != "" {
		r = r.WithAuth(f.opts.Token)
	}
	return r, nil
}

// Artifact is a resolved model file.
type Artifact struct {
	// Path is the local model file.
	Path string
	// Repo is set whenever a hub repository is known; the tensor backend
	// reads its tokenizer from it.
	Repo *hub.Repo
	// Fetched is true when the file came from the hub in this call.
	Fetched bool
}

// Source names what to resolve.
type Source struct {
	Kind backend.Kind
	// LocalPath wins when the file exists.
	LocalPath string
	RepoID    string
	File      string
}

// Resolve returns a local artifact, fetching it from the hub when the local
// file is absent. Failures are ModelLoadErrors.
func (f *Fetcher) Resolve(ctx context.Context, src Source) (Artifact, error) {
	var repo *hub.Repo
	if src.RepoID != "" {
		r, err := f.Repo(src.RepoID)
		if err != nil {
			return Artifact{}, &backend.ModelLoadError{Path: src.RepoID, Reason: "hub repository", Err: err}
		}
		repo = r
	}
	if src.LocalPath != "" {
		if p, ok := fsutil.IsFile(src.LocalPath); ok {
			f.opts.Logger.Debug().Str("path", p).Msg("model artifact present locally")
			return Artifact{Path: p, Repo: repo}, nil
		}
	}
	if repo == nil || src.File == "" {
		return Artifact{}, &backend.ModelLoadError{Path: src.LocalPath, Reason: "model file missing and no hub source configured"}
	}
	p, err := f.Ensure(ctx, repo, src.RepoID, src.File)
	if err != nil {
		return Artifact{}, &backend.ModelLoadError{Path: src.RepoID + "/" + src.File, Reason: "download failed", Err: err}
	}
	if src.Kind == backend.KindTensor && strings.HasSuffix(src.File, ".onnx") {
		if err := f.ensureCompanions(ctx, repo, src.RepoID, src.File); err != nil {
			return Artifact{}, &backend.ModelLoadError{Path: src.RepoID + "/" + src.File, Reason: "download external weights", Err: err}
		}
	}
	return Artifact{Path: p, Repo: repo, Fetched: true}, nil
}

// Ensure downloads one file, sharing the work with concurrent callers. The
// wait honors ctx; the download itself runs to completion for later callers.
func (f *Fetcher) Ensure(ctx context.Context, repo *hub.Repo, repoID, file string) (string, error) {
	key := repoID + "@" + f.opts.Revision + ":" + file
	ch := f.group.DoChan(key, func() (any, error) {
		f.opts.Logger.Info().Str("repo", repoID).Str("file", file).Msg("fetching model artifact")
		return f.download(repo, file)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		p := res.Val.(string)
		f.opts.Logger.Info().Str("path", p).Bool("shared", res.Shared).Msg("model artifact ready")
		return p, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ensureCompanions fetches ONNX external-data files stored next to the graph.
func (f *Fetcher) ensureCompanions(ctx context.Context, repo *hub.Repo, repoID, file string) error {
	files, err := f.list(repo)
	if err != nil {
		return err
	}
	dir := path.Dir(file)
	stem := path.Base(file)
	for _, name := range files {
		if path.Dir(name) != dir || name == file {
			continue
		}
		base := path.Base(name)
		if strings.HasPrefix(base, stem+"_data") || strings.HasPrefix(base, stem+".data") {
			if _, err := f.Ensure(ctx, repo, repoID, name); err != nil {
				return err
			}
		}
	}
	return nil
}
