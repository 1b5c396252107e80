package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-facecam/internal/httpc"
	"github.com/teslashibe/go-facecam/pkg/metrics"
)

// Loader resolves the vision library and loads the classifier.
type Loader interface {
	Load(ctx context.Context) (Library, Classifier, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (Library, Classifier, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context) (Library, Classifier, error) {
	return f(ctx)
}

// Resource is the process-wide classifier resource. It is loaded at most
// once and never unloaded; once Ready reports true it stays true.
type Resource struct {
	loader  Loader
	metrics *metrics.Metrics
	log     *slog.Logger

	once   sync.Once
	done   chan struct{}
	loaded atomic.Bool

	// Written once inside once.Do, read after done is closed.
	lib        Library
	classifier Classifier
	err        error
}

// NewResource creates an unloaded resource backed by loader.
func NewResource(loader Loader, m *metrics.Metrics, logger *slog.Logger) *Resource {
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resource{
		loader:  loader,
		metrics: m,
		log:     logger.With("component", "vision"),
		done:    make(chan struct{}),
	}
}

// Load performs the single load attempt. Concurrent and later callers
// wait for that attempt and receive its result; a failed load is never
// retried.
func (r *Resource) Load(ctx context.Context) error {
	r.once.Do(func() {
		defer close(r.done)

		if r.loader == nil {
			r.err = fmt.Errorf("%w: no loader configured", ErrNotLoaded)
			r.metrics.ResourceLoadErrors.Add(1)
			return
		}

		start := time.Now()
		lib, cls, err := r.loader.Load(ctx)
		r.metrics.ResourceLoadMillis.Store(uint64(time.Since(start).Milliseconds()))
		if err == nil && (lib == nil || cls == nil) {
			err = ErrNotLoaded
		}
		if err != nil {
			r.err = err
			r.metrics.ResourceLoadErrors.Add(1)
			r.log.Error("classifier resource failed to load", "error", err)
			return
		}

		r.lib, r.classifier = lib, cls
		r.loaded.Store(true)
		metrics.SetFlag(&r.metrics.ResourceLoaded, true)
		r.log.Info("classifier resource loaded", "took", time.Since(start).Round(time.Millisecond))
	})

	<-r.done
	return r.err
}

// Ready reports whether the resource loaded successfully.
func (r *Resource) Ready() bool {
	return r.loaded.Load()
}

// Done is closed once the load attempt has finished, successfully or not.
func (r *Resource) Done() <-chan struct{} {
	return r.done
}

// Err returns the load error, or nil while loading or after success.
func (r *Resource) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Library returns the loaded library or ErrNotLoaded.
func (r *Resource) Library() (Library, error) {
	if !r.Ready() {
		return nil, ErrNotLoaded
	}
	return r.lib, nil
}

// Classifier returns the loaded classifier or ErrNotLoaded.
func (r *Resource) Classifier() (Classifier, error) {
	if !r.Ready() {
		return nil, ErrNotLoaded
	}
	return r.classifier, nil
}

// FileLoader loads a classifier from a fixed path. When Path is an
// http(s) URL the file is fetched into CacheDir first and reused from
// there on later runs.
type FileLoader struct {
	Library  Library
	Path     string
	CacheDir string
	Client   *http.Client
}

// Load implements Loader.
func (l *FileLoader) Load(ctx context.Context) (Library, Classifier, error) {
	if l.Library == nil {
		return nil, nil, errors.New("vision: no library available")
	}

	local, err := l.resolve(ctx)
	if err != nil {
		return nil, nil, err
	}

	cls, err := l.Library.LoadClassifier(local)
	if err != nil {
		return nil, nil, fmt.Errorf("load classifier %s: %w", local, err)
	}
	return l.Library, cls, nil
}

func (l *FileLoader) resolve(ctx context.Context) (string, error) {
	if !isRemote(l.Path) {
		if _, err := os.Stat(l.Path); err != nil {
			return "", fmt.Errorf("%w: %s", ErrClassifierNotFound, l.Path)
		}
		return l.Path, nil
	}

	u, err := url.Parse(l.Path)
	if err != nil {
		return "", fmt.Errorf("parse classifier url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "classifier.xml"
	}
	local := filepath.Join(l.CacheDir, name)
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	if err := httpc.Download(ctx, l.Client, l.Path, local); err != nil {
		return "", fmt.Errorf("fetch classifier: %w", err)
	}
	return local, nil
}

func isRemote(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}
