// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

package harvest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mjanez/schemingdcat/internal/telemetry"
)

// Catalog is the slice of the CKAN action API the lifecycle needs.
type Catalog interface {
	PackageCreate(ctx context.Context, d *Dataset) (string, error)
	PackageUpdate(ctx context.Context, d *Dataset) (string, error)
	PackageDelete(ctx context.Context, id string) error
	PackageShow(ctx context.Context, id string) (*Dataset, error)
}

// fieldErrorer is implemented by catalog validation errors carrying
// structured field messages.
type fieldErrorer interface {
	FieldErrors() map[string][]string
}

// ImportResult is the terminal state of one object's import.
type ImportResult string

const (
	ImportOK        ImportResult = "done"
	ImportUnchanged ImportResult = "unchanged"
	ImportFailed    ImportResult = "failed"
)

// LifecycleConfig carries the per-source switches of the import stage.
type LifecycleConfig struct {
	// keep the immediately prior object current for audit purposes and
	// skip the modified-date gate
	ForceImport bool
	// actually delete catalog packages for delete-status objects;
	// deletion is opt-in per source, never automatic
	OverrideLocalDatasets bool
}

// Lifecycle materializes gathered objects into the catalog, running the
// extension hooks at each boundary. A failed object never aborts its
// siblings in the same batch.
type Lifecycle struct {
	store   ObjectStore
	catalog Catalog
	hooks   *HookSet
	cfg     LifecycleConfig
}

func NewLifecycle(store ObjectStore, catalog Catalog, hooks *HookSet, cfg LifecycleConfig) *Lifecycle {
	if hooks == nil {
		hooks = NewHookSet()
	}
	return &Lifecycle{store: store, catalog: catalog, hooks: hooks, cfg: cfg}
}

// Fetch is a no-op for every harvester variant here, since gather already
// fetched the full content. It only advances the object state.
func (l *Lifecycle) Fetch(ctx context.Context, obj *Object) error {
	obj.State = StateFetched
	return l.store.Update(ctx, obj)
}

// Import materializes one object. Any failure is logged against the
// object and surfaced as ImportFailed; errors never propagate out.
func (l *Lifecycle) Import(ctx context.Context, obj *Object) ImportResult {
	ctx, span := telemetry.SubSpanFromCtxWithName(ctx, "import_"+obj.GUID)
	defer span.End()

	record, err := obj.Record()
	if err != nil {
		return l.fail(ctx, obj, fmt.Sprintf("malformed object content: %v", err))
	}

	if err := l.hooks.BeforeModifyPackage(ctx, record); err != nil {
		return l.fail(ctx, obj, fmt.Sprintf("before_modify_package_dict hook: %v", err))
	}
	if err := l.hooks.ModifyPackage(ctx, record); err != nil {
		return l.fail(ctx, obj, fmt.Sprintf("modify_package_dict hook: %v", err))
	}

	// re-home the object's guid when the resolved identifier differs,
	// but only if no other current object already claims it
	if record.Identifier != "" && record.Identifier != obj.GUID {
		claimed, err := l.store.CurrentObject(ctx, obj.SourceID, record.Identifier)
		if err != nil {
			return l.fail(ctx, obj, fmt.Sprintf("checking guid %s: %v", record.Identifier, err))
		}
		if claimed != nil && claimed.ID != obj.ID {
			return l.fail(ctx, obj, fmt.Sprintf("identifier %s already claimed by a current object", record.Identifier))
		}
		log.Debugf("re-homing object %s from guid %q to %q", obj.ID, obj.GUID, record.Identifier)
		obj.GUID = record.Identifier
	}

	switch obj.Status {
	case StatusDelete:
		return l.importDelete(ctx, obj)
	case StatusNew:
		return l.importNew(ctx, obj, record)
	case StatusChange:
		return l.importChange(ctx, obj, record)
	default:
		return l.fail(ctx, obj, fmt.Sprintf("unknown object status %q", obj.Status))
	}
}

func (l *Lifecycle) importDelete(ctx context.Context, obj *Object) ImportResult {
	if !l.cfg.OverrideLocalDatasets {
		// the stale object stays current with status delete; the
		// package persists until deletion is enabled for this source
		log.Infof("not deleting package %s: override_local_datasets is disabled", obj.PackageID)
		obj.State = StateImported
		if err := l.store.Update(ctx, obj); err != nil {
			return l.fail(ctx, obj, err.Error())
		}
		return ImportUnchanged
	}
	if err := l.catalog.PackageDelete(ctx, obj.PackageID); err != nil {
		return l.fail(ctx, obj, fmt.Sprintf("deleting package %s: %s", obj.PackageID, flattenCatalogError(err)))
	}
	log.Infof("deleted package %s for guid %s", obj.PackageID, obj.GUID)
	obj.State = StateImported
	if err := l.store.Update(ctx, obj); err != nil {
		return l.fail(ctx, obj, err.Error())
	}
	return ImportOK
}

func (l *Lifecycle) importNew(ctx context.Context, obj *Object, record *Dataset) ImportResult {
	// pre-assign the package id to the record's own identifier so that
	// references established during gather stay stable; the create
	// payload carries it explicitly, otherwise the catalog would
	// generate its own id
	record.ID = record.Identifier
	packageID := record.Identifier

	if err := l.hooks.BeforeCreate(ctx, record); err != nil {
		return l.fail(ctx, obj, fmt.Sprintf("before_create hook: %v", err))
	}
	createdID, err := l.catalog.PackageCreate(ctx, record)
	if err != nil {
		return l.fail(ctx, obj, fmt.Sprintf("creating package: %s", flattenCatalogError(err)))
	}
	if createdID != "" && createdID != packageID {
		log.Warnf("catalog assigned package id %s instead of the pre-assigned %s", createdID, packageID)
		packageID = createdID
	}
	if err := l.hooks.AfterCreate(ctx, packageID, record); err != nil {
		return l.fail(ctx, obj, fmt.Sprintf("after_create hook: %v", err))
	}

	return l.finish(ctx, obj, packageID)
}

func (l *Lifecycle) importChange(ctx context.Context, obj *Object, record *Dataset) ImportResult {
	previous, err := l.store.CurrentObject(ctx, obj.SourceID, obj.GUID)
	if err != nil {
		return l.fail(ctx, obj, fmt.Sprintf("loading previous object: %v", err))
	}

	var prevRecord *Dataset
	if previous != nil {
		prevRecord, err = previous.Record()
		if err != nil {
			log.Warnf("previous object %s has malformed content, ignoring: %v", previous.ID, err)
			prevRecord = nil
		}
	}

	// the modified-date gate runs before the previous object is flipped,
	// so an unchanged record leaves the stored state untouched
	if prevRecord != nil && !l.cfg.ForceImport {
		incoming, stored := record.ModifiedTime(), prevRecord.ModifiedTime()
		if !incoming.IsZero() && !stored.IsZero() && !incoming.After(stored) {
			log.Debugf("package %s unchanged since %s, skipping", obj.PackageID, stored)
			obj.State = StateImported
			if err := l.store.Update(ctx, obj); err != nil {
				return l.fail(ctx, obj, err.Error())
			}
			return ImportUnchanged
		}
	}

	if prevRecord != nil {
		record.Resources = mergeResources(prevRecord.Resources, record.Resources)
	}

	// address the package explicitly by id; the name slug is regenerated
	// every cycle and must not be what the update targets
	record.ID = obj.PackageID
	if record.ID == "" {
		record.ID = record.Identifier
	}

	if err := l.hooks.BeforeUpdate(ctx, record); err != nil {
		return l.fail(ctx, obj, fmt.Sprintf("before_update hook: %v", err))
	}
	if _, err := l.catalog.PackageUpdate(ctx, record); err != nil {
		return l.fail(ctx, obj, fmt.Sprintf("updating package %s: %s", obj.PackageID, flattenCatalogError(err)))
	}
	if err := l.hooks.AfterUpdate(ctx, obj.PackageID, record); err != nil {
		return l.fail(ctx, obj, fmt.Sprintf("after_update hook: %v", err))
	}

	return l.finish(ctx, obj, obj.PackageID)
}

// finish flips the previous current object and promotes this one.
func (l *Lifecycle) finish(ctx context.Context, obj *Object, packageID string) ImportResult {
	if l.cfg.ForceImport {
		log.Debugf("force import: keeping prior object for guid %s for audit", obj.GUID)
	} else {
		if _, err := l.store.MarkNotCurrent(ctx, obj.SourceID, obj.GUID); err != nil {
			return l.fail(ctx, obj, fmt.Sprintf("flipping previous object: %v", err))
		}
	}
	obj.PackageID = packageID
	obj.Current = true
	obj.State = StateImported
	if err := l.store.Update(ctx, obj); err != nil {
		return l.fail(ctx, obj, err.Error())
	}
	return ImportOK
}

func (l *Lifecycle) fail(ctx context.Context, obj *Object, msg string) ImportResult {
	log.Errorf("import of %s failed: %s", obj.GUID, msg)
	obj.AddError(msg)
	obj.State = StateError
	if err := l.store.Update(ctx, obj); err != nil {
		log.Errorf("could not record import error for %s: %v", obj.ID, err)
	}
	return ImportFailed
}

// mergeResources merges distributions by URL. The variant with the more
// recent modified timestamp wins; incoming resources with new URLs are
// appended and existing resources whose URL disappeared from the feed
// are retained. The merge is additive, never destructive.
func mergeResources(existing, incoming []Resource) []Resource {
	byURL := make(map[string]Resource, len(existing))
	var order []string
	for _, r := range existing {
		if _, seen := byURL[r.URL]; !seen {
			order = append(order, r.URL)
		}
		byURL[r.URL] = r
	}
	for _, r := range incoming {
		prev, seen := byURL[r.URL]
		if !seen {
			byURL[r.URL] = r
			order = append(order, r.URL)
			continue
		}
		if resourceModified(r).After(resourceModified(prev)) || resourceModified(prev).IsZero() {
			byURL[r.URL] = r
		}
	}
	out := make([]Resource, 0, len(order))
	for _, url := range order {
		out = append(out, byURL[url])
	}
	return out
}

func resourceModified(r Resource) time.Time {
	d := Dataset{Modified: r.Modified}
	return d.ModifiedTime()
}

// flattenCatalogError turns a structured validation error into a single
// log message; other errors pass through unchanged.
func flattenCatalogError(err error) string {
	var fe fieldErrorer
	if errors.As(err, &fe) {
		fields := fe.FieldErrors()
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var parts []string
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(fields[k], "; ")))
		}
		return "validation error: " + strings.Join(parts, ", ")
	}
	return err.Error()
}
