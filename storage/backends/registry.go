package backends

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"xdao.co/authledger/storage"
)

// Backend is a build-time plugin that can open a storage.Store implementation.
//
// Backends register themselves in init():
//
//	backends.MustRegister(backends.Backend{ ... })
//
// The binary must import the backend package for registration to occur.
type Backend struct {
	Name        string
	Description string
	Usage       Usage

	// Keys lists the settings Open understands, for help output.
	Keys []string

	// Open constructs the Store from settings. Unknown keys are ignored.
	Open func(settings Settings) (storage.Store, error)
}

// Settings carries backend options by name, typically from the config file
// and command line. Keys are lowercase.
type Settings map[string]string

// String returns the value for key, or def when unset or blank.
func (s Settings) String(key, def string) string {
	if v := strings.TrimSpace(s[key]); v != "" {
		return v
	}
	return def
}

// Duration parses key as a time.Duration, returning def when unset.
func (s Settings) Duration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(s[key])
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("backends: setting %s: %w", key, err)
	}
	return d, nil
}

// Bool parses key as a bool, returning def when unset.
func (s Settings) Bool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(s[key])
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("backends: setting %s: %w", key, err)
	}
	return b, nil
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("backends: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("backends: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("backends: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("backends: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// Open opens the named backend if it exists and matches usage.
func Open(name string, usage Usage, settings Settings) (storage.Store, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (have %s)", name, strings.Join(Names(usage), ", "))
	}
	if !b.Usage.allows(usage) {
		return nil, fmt.Errorf("backend %q not supported in this binary", name)
	}
	if settings == nil {
		settings = Settings{}
	}
	return b.Open(settings)
}
