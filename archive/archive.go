/*
Package archive stores rendered statement snapshots.

PURPOSE:
  A teacher can freeze a statement at a point in time (for a parent, or
  before a correction). The JSON snapshot is written to object storage
  where the external PDF renderer picks it up.

KEYS:
  statements/{teacher}/{student}/{yyyymmddThhmmssZ}.json

IMPLEMENTATIONS:
  MinIO:  S3-compatible object storage
  Memory: in-process map (tests, development without storage)
*/
package archive

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const ContentTypeJSON = "application/json"

// StatementArchive persists a snapshot and returns where it was stored.
type StatementArchive interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// StatementKey builds the object key for a snapshot taken at t.
func StatementKey(teacher, student string, t time.Time) string {
	return fmt.Sprintf("statements/%s/%s/%s.json", teacher, student, t.UTC().Format("20060102T150405Z"))
}

// =============================================================================
// MEMORY ARCHIVE
// =============================================================================

type Object struct {
	ContentType string
	Body        []byte
}

type Memory struct {
	mu      sync.Mutex
	objects map[string]Object
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]Object)}
}

func (m *Memory) Put(_ context.Context, key, contentType string, body []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{ContentType: contentType, Body: append([]byte(nil), body...)}
	return "memory://" + key, nil
}

func (m *Memory) Get(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	return o, ok
}
