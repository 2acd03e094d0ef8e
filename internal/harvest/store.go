// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

package harvest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ObjectStore persists harvest objects. The production implementation is
// backed by Postgres; MemoryStore backs the engine tests.
type ObjectStore interface {
	// CurrentGUIDs returns the guid to package id mapping of every
	// current object for a source. Queried fresh at the start of every
	// gather cycle, never cached across cycles.
	CurrentGUIDs(ctx context.Context, sourceID string) (map[string]string, error)
	// Insert stores a new object.
	Insert(ctx context.Context, obj *Object) error
	// Update rewrites an existing object.
	Update(ctx context.Context, obj *Object) error
	// CurrentObject returns the current object for a guid, or nil when
	// there is none.
	CurrentObject(ctx context.Context, sourceID, guid string) (*Object, error)
	// MarkNotCurrent flips every current object for a guid to
	// non-current and returns how many rows were touched.
	MarkNotCurrent(ctx context.Context, sourceID, guid string) (int, error)
	// ObjectsForGUID returns every stored version for a guid, newest first.
	ObjectsForGUID(ctx context.Context, sourceID, guid string) ([]*Object, error)
	// PendingObjects returns gathered objects that have not been imported.
	PendingObjects(ctx context.Context, sourceID string) ([]*Object, error)
}

// MemoryStore is an in-memory ObjectStore used in tests and dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	objects []*Object
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) CurrentGUIDs(_ context.Context, sourceID string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for _, o := range m.objects {
		if o.SourceID == sourceID && o.Current {
			out[o.GUID] = o.PackageID
		}
	}
	return out, nil
}

func (m *MemoryStore) Insert(_ context.Context, obj *Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obj.ID == "" {
		obj.ID = uuid.NewString()
	}
	if obj.Created.IsZero() {
		obj.Created = time.Now()
	}
	clone := *obj
	m.objects = append(m.objects, &clone)
	return nil
}

func (m *MemoryStore) Update(_ context.Context, obj *Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, o := range m.objects {
		if o.ID == obj.ID {
			clone := *obj
			m.objects[i] = &clone
			return nil
		}
	}
	return fmt.Errorf("no stored object with id %s", obj.ID)
}

func (m *MemoryStore) CurrentObject(_ context.Context, sourceID, guid string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.objects) - 1; i >= 0; i-- {
		o := m.objects[i]
		if o.SourceID == sourceID && o.GUID == guid && o.Current {
			clone := *o
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) MarkNotCurrent(_ context.Context, sourceID, guid string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.objects {
		if o.SourceID == sourceID && o.GUID == guid && o.Current {
			o.Current = false
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ObjectsForGUID(_ context.Context, sourceID, guid string) ([]*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Object
	for i := len(m.objects) - 1; i >= 0; i-- {
		o := m.objects[i]
		if o.SourceID == sourceID && o.GUID == guid {
			clone := *o
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *MemoryStore) PendingObjects(_ context.Context, sourceID string) ([]*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Object
	for _, o := range m.objects {
		if o.SourceID == sourceID && (o.State == StateNew || o.State == StateFetched) {
			clone := *o
			out = append(out, &clone)
		}
	}
	return out, nil
}

var _ ObjectStore = &MemoryStore{}
