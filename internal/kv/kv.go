package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
)

var ErrNotFound = errors.New("kv: document not found")

// Document is a single named JSON blob. Load returns ErrNotFound when nothing was saved yet.
type Document interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Snapshot is a typed view over a Document. Reads never fail: missing, empty or corrupt
// data is logged and replaced by the initial value.
type Snapshot[T any] struct {
	doc    Document
	init   func() T
	name   string
	logger *zap.Logger
}

func NewSnapshot[T any](doc Document, name string, init func() T, logger *zap.Logger) *Snapshot[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshot[T]{doc: doc, init: init, name: name, logger: logger}
}

func (s *Snapshot[T]) Load(ctx context.Context) T {
	value := s.init()
	data, err := s.doc.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("kv load failed", zap.String("document", s.name), zap.Error(err))
		}
		return value
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return value
	}
	if err := json.Unmarshal(data, &value); err != nil {
		s.logger.Warn("kv decode failed", zap.String("document", s.name), zap.Error(err))
		return s.init()
	}
	return value
}

func (s *Snapshot[T]) Save(ctx context.Context, value T) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		s.logger.Error("kv encode failed", zap.String("document", s.name), zap.Error(err))
		return err
	}
	if err := s.doc.Save(ctx, data); err != nil {
		s.logger.Warn("kv save failed", zap.String("document", s.name), zap.Error(err))
		return err
	}
	return nil
}
