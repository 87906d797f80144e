// Package graphloom is the control-plane backing store for a compute-graph
// orchestration service. It durably records namespaces, compute-graph
// definitions, and references to the code artifacts those graphs carry, and
// serves consistent reads of that state.
package graphloom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/graphloom/graphloom/internal/kvstore"
	"github.com/graphloom/graphloom/internal/state"
)

var (
	ErrNotStarted = errors.New("graphloom: state store not started")
	ErrClosed     = errors.New("graphloom: state store closed")
)

// Config configures the state store. Only Paths[0] is used at the moment;
// future versions may use multiple paths for sharding or tiering.
type Config struct {
	// Paths contains data directories. Currently only Paths[0] is used.
	Paths []string
	// MinimumFreeGB is a free-space threshold for on-disk operations.
	MinimumFreeGB uint
	// Logger is an optional structured logger. If nil, a stderr logger is used.
	Logger *slog.Logger
}

// State is the shared store handle. It owns the embedded kv instance and
// dispatches the closed mutation set to the state machine. One State is
// shared by all concurrent callers; consistency is delegated entirely to the
// store's transactions, no locks are held across I/O.
type State struct {
	log    *slog.Logger
	config Config

	kvMu    sync.RWMutex
	kv      *kvstore.Store
	machine *state.Machine

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

func defaultLogger() *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(h)
}

// New constructs a state handle. New does not perform heavy I/O; call Start
// to open the store.
func New(conf Config) (*State, error) {
	if len(conf.Paths) == 0 {
		return nil, fmt.Errorf("at least one path must be provided in config")
	}
	if conf.Logger == nil {
		conf.Logger = defaultLogger()
	}
	return &State{
		log:    conf.Logger,
		config: conf,
	}, nil
}

// Start opens the embedded store and marks the handle ready. Start is safe
// to call multiple times; only the first call has effect.
func (s *State) Start(ctx context.Context) error {
	var startErr error
	s.startOnce.Do(func() {
		dataRoot := s.config.Paths[0]
		if err := os.MkdirAll(dataRoot, 0o700); err != nil {
			startErr = fmt.Errorf("mkdir %s: %w", dataRoot, err)
			return
		}

		kvPath := filepath.Join(dataRoot, "kv")
		if err := os.MkdirAll(kvPath, 0o700); err != nil {
			startErr = fmt.Errorf("mkdir %s: %w", kvPath, err)
			return
		}

		kv, err := kvstore.Open(kvstore.StoreConfig{
			Paths:            []string{kvPath},
			MinimumFreeSpace: int(s.config.MinimumFreeGB),
			Logger:           logrus.New(),
		})
		if err != nil {
			startErr = fmt.Errorf("open kv: %w", err)
			return
		}

		s.kvMu.Lock()
		s.kv = kv
		s.machine = state.NewMachine(kv)
		s.kvMu.Unlock()

		s.started.Store(true)
		s.log.Info("graphloom state store started", "path", dataRoot)
	})
	return startErr
}

// Run starts the store, blocks until ctx is canceled, then performs a bounded
// graceful shutdown. It is a convenience for services.
func (s *State) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Close(shutdownCtx)
}

// Close releases the store. Close is idempotent.
func (s *State) Close(ctx context.Context) error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.kvMu.Lock()
		kv := s.kv
		s.kv = nil
		s.machine = nil
		s.kvMu.Unlock()

		if kv != nil {
			if err := kv.Close(); err != nil {
				closeErr = fmt.Errorf("close kv: %w", err)
			}
		}

		s.log.Info("graphloom state store closed")
	})
	return closeErr
}

func (s *State) machineHandle() (*state.Machine, error) {
	if !s.started.Load() {
		return nil, ErrNotStarted
	}

	s.kvMu.RLock()
	m := s.machine
	s.kvMu.RUnlock()
	if m == nil {
		return nil, ErrClosed
	}

	return m, nil
}

func (s *State) kvHandle() (*kvstore.Store, error) {
	if !s.started.Load() {
		return nil, ErrNotStarted
	}

	s.kvMu.RLock()
	kv := s.kv
	s.kvMu.RUnlock()
	if kv == nil {
		return nil, ErrClosed
	}

	return kv, nil
}

// Write applies one mutation as an atomic transaction. The switch is
// exhaustive over the sealed request set; an unhandled request kind is a
// programming error and reported as such.
func (s *State) Write(ctx context.Context, req state.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m, err := s.machineHandle()
	if err != nil {
		return err
	}

	switch r := req.(type) {
	case state.CreateNamespaceRequest:
		return m.CreateNamespace(r.Name)
	case state.CreateComputeGraphRequest:
		return m.CreateComputeGraph(r.Namespace, r.ComputeGraph)
	case state.DeleteComputeGraphRequest:
		return m.DeleteComputeGraph(r.Namespace, r.Name)
	default:
		return fmt.Errorf("unhandled request type %T", req)
	}
}

// Reader returns a fresh read handle sharing the underlying store.
func (s *State) Reader() (*state.Reader, error) {
	kv, err := s.kvHandle()
	if err != nil {
		return nil, err
	}
	return state.NewReader(kv), nil
}

// Store exposes the underlying kv handle for maintenance operations such as
// backups. It fails with the same lifecycle errors as the data paths.
func (s *State) Store() (*kvstore.Store, error) {
	return s.kvHandle()
}
