package plugin

import (
	"context"
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/viant/afs"
	"github.com/viant/construct/internal/logging"
	"github.com/viant/construct/model/types"
	"gopkg.in/yaml.v3"
)

// DefaultPattern matches manifest file names
const DefaultPattern = "*.{yaml,yml}"

// ManifestDiscoverer loads YAML manifests from search paths
type ManifestDiscoverer struct {
	fs      afs.Service
	pattern string
	logger  logging.Logger
}

// Option customises a discoverer
type Option func(d *ManifestDiscoverer)

// WithPattern sets manifest file name pattern
func WithPattern(pattern string) Option {
	return func(d *ManifestDiscoverer) {
		d.pattern = pattern
	}
}

// WithFS sets storage service
func WithFS(fs afs.Service) Option {
	return func(d *ManifestDiscoverer) {
		d.fs = fs
	}
}

// WithLogger sets logger
func WithLogger(logger logging.Logger) Option {
	return func(d *ManifestDiscoverer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewManifestDiscoverer creates a discoverer
func NewManifestDiscoverer(options ...Option) (*ManifestDiscoverer, error) {
	ret := &ManifestDiscoverer{pattern: DefaultPattern, logger: logging.Nop()}
	for _, opt := range options {
		opt(ret)
	}
	if ret.fs == nil {
		ret.fs = afs.New()
	}
	if !doublestar.ValidatePattern(ret.pattern) {
		return nil, fmt.Errorf("%w: invalid manifest pattern %q", types.ErrInvalidPluginPath, ret.pattern)
	}
	return ret, nil
}

// Discover returns manifests of every search path in path order, files sorted by name
func (d *ManifestDiscoverer) Discover(ctx context.Context, searchPaths []string) ([]Plugin, error) {
	var ret []Plugin
	for _, searchPath := range searchPaths {
		manifests, err := d.discover(ctx, searchPath)
		if err != nil {
			return nil, err
		}
		ret = append(ret, manifests...)
	}
	return ret, nil
}

func (d *ManifestDiscoverer) discover(ctx context.Context, searchPath string) ([]Plugin, error) {
	if searchPath == "" {
		return nil, fmt.Errorf("%w: empty path", types.ErrInvalidPluginPath)
	}
	exists, err := d.fs.Exists(ctx, searchPath)
	if err != nil || !exists {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidPluginPath, searchPath)
	}
	objects, err := d.fs.List(ctx, searchPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list %v: %w", searchPath, err)
	}
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Name() < objects[j].Name()
	})
	var ret []Plugin
	for _, object := range objects {
		if object.IsDir() {
			continue
		}
		if matched, _ := doublestar.Match(d.pattern, object.Name()); !matched {
			continue
		}
		data, err := d.fs.Download(ctx, object)
		if err != nil {
			return nil, fmt.Errorf("failed to read %v: %w", object.URL(), err)
		}
		manifest := &Manifest{}
		if err = yaml.Unmarshal(data, manifest); err != nil {
			return nil, fmt.Errorf("failed to decode %v: %w", object.URL(), err)
		}
		manifest.URL = object.URL()
		d.logger.Debug("plugin manifest discovered", "url", manifest.URL, "name", manifest.Name())
		ret = append(ret, manifest)
	}
	return ret, nil
}
