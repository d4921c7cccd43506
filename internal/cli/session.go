package cli

import (
	"context"
	"log/slog"

	"github.com/roach88/flyter/internal/host"
	"github.com/roach88/flyter/internal/ir"
	"github.com/roach88/flyter/internal/kv"
)

// session is an open store with a running host in front of it.
type session struct {
	store  kv.Store
	host   *host.Host
	cancel context.CancelFunc
	done   chan error
}

// openSession opens the configured store and starts a host on it.
// The caller must Close the session.
func openSession(ctx context.Context, opts *RootOptions, hostOpts ...host.Option) (*session, error) {
	st, err := openStore(opts)
	if err != nil {
		return nil, err
	}

	if opts.Tokens != nil {
		hostOpts = append(hostOpts, host.WithTokenGenerator(opts.Tokens))
	}
	h := host.New(st, hostOpts...)

	runCtx, cancel := context.WithCancel(ctx)
	s := &session{store: st, host: h, cancel: cancel, done: make(chan error, 1)}
	go func() { s.done <- h.Run(runCtx) }()
	return s, nil
}

// openStore opens the configured store without a host.
func openStore(opts *RootOptions) (kv.Store, error) {
	backend, path := opts.cfg.Store.Backend, opts.cfg.Store.Path
	slog.Debug("opening store", "backend", backend, "path", path)
	st, err := kv.Open(backend, path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// submit runs one call through the session's host.
func (s *session) submit(ctx context.Context, call ir.Call) (ir.Result, error) {
	return s.host.Submit(ctx, call)
}

// Close stops the host once queued calls are done, then closes the store.
func (s *session) Close() error {
	s.host.Stop()
	<-s.done
	s.cancel()
	if err := s.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// execOne opens a session, runs call and closes the session.
func execOne(ctx context.Context, opts *RootOptions, call ir.Call) (ir.Result, error) {
	s, err := openSession(ctx, opts)
	if err != nil {
		return ir.Result{}, err
	}
	res, callErr := s.submit(ctx, call)
	if err := s.Close(); err != nil && callErr == nil {
		return res, WrapExitError(ExitCommandError, "failed to close database", err)
	}
	return res, callErr
}
