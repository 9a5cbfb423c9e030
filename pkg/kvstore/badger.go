// Package kvstore opens the embedded BadgerDB used when runs are kept locally
// instead of in PostgreSQL.
package kvstore

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler/pkg/config"
)

// Options controls how the database is opened.
type Options struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *zap.Logger
}

// FromConfig derives Options from the store section of the service config.
func FromConfig(cfg config.StoreConfig, logger *zap.Logger) Options {
	return Options{
		Path:       cfg.BadgerPath,
		InMemory:   cfg.InMemory,
		SyncWrites: !cfg.InMemory,
		Logger:     logger,
	}
}

// zapLogger adapts zap to badger's logger interface.
type zapLogger struct {
	log *zap.SugaredLogger
}

func (l zapLogger) Errorf(format string, args ...interface{})   { l.log.Errorf(format, args...) }
func (l zapLogger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l zapLogger) Infof(format string, args ...interface{})    { l.log.Debugf(format, args...) }
func (l zapLogger) Debugf(format string, args ...interface{})   { l.log.Debugf(format, args...) }

// Open opens the database; Path is required unless InMemory is set.
func Open(opts Options) (*badger.DB, error) {
	if !opts.InMemory && opts.Path == "" {
		return nil, errors.New("badger path is required for persistent store")
	}

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", opts.Path, err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites).WithNumVersionsToKeep(1)
	if opts.Logger != nil {
		bopts = bopts.WithLogger(zapLogger{log: opts.Logger.Sugar()})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// OpenInMemory is used by tests and the one-shot CLI solve.
func OpenInMemory() (*badger.DB, error) {
	return Open(Options{InMemory: true})
}
