// Package oracleregistry is a build-time plugin registry of chain.Oracle
// backends.
//
// Backends register themselves in init():
//
//	oracleregistry.MustRegister(oracleregistry.Backend{ ... })
//
// A binary enables a backend by importing its package (often as a blank import).
package oracleregistry

import (
	"flag"
	"fmt"
	"sort"
	"sync"

	"xdao.co/covenants/chain"
)

// Usage restricts which programs should accept a given backend.
type Usage uint8

const (
	// UsageCLI marks backends available to covenantctl.
	UsageCLI Usage = 1 << iota
	// UsageDaemon marks backends covenant-oracled may serve.
	UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }

// Backend opens a chain.Oracle from flag values.
type Backend struct {
	Name        string
	Description string
	Usage       Usage

	// RegisterFlags binds backend-specific flags on fs. Values live in
	// package variables, so the most recently parsed FlagSet wins.
	RegisterFlags func(fs *flag.FlagSet)

	// Open constructs the oracle using values parsed into the flags
	// registered by RegisterFlags. It returns an optional close function.
	Open func() (chain.Oracle, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("oracleregistry: backend name is required")
	}
	if b.RegisterFlags == nil {
		return fmt.Errorf("oracleregistry: backend %q missing RegisterFlags", b.Name)
	}
	if b.Open == nil {
		return fmt.Errorf("oracleregistry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("oracleregistry: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("oracleregistry: backend %q already registered", b.Name)
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

// RegisterFlags registers flags for all backends matching usage, so a single
// flag.Parse accepts every backend's options.
func RegisterFlags(fs *flag.FlagSet, usage Usage) {
	for _, b := range List(usage) {
		b.RegisterFlags(fs)
	}
}

// ApplyOptions sets flags from configuration-file options. Keys are flag
// names without dashes. Flags already set on the command line win.
func ApplyOptions(fs *flag.FlagSet, opts map[string]string) error {
	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if explicit[k] {
			continue
		}
		if fs.Lookup(k) == nil {
			return fmt.Errorf("oracleregistry: unknown backend option %q", k)
		}
		if err := fs.Set(k, opts[k]); err != nil {
			return fmt.Errorf("oracleregistry: option %q: %w", k, err)
		}
	}
	return nil
}

// Open opens the named backend if it exists and matches usage.
func Open(name string, usage Usage) (chain.Oracle, func() error, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown oracle backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return nil, nil, fmt.Errorf("oracle backend %q not supported in this binary", name)
	}
	return b.Open()
}
