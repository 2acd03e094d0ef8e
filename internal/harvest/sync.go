// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/unicode/norm"

	"github.com/mjanez/schemingdcat/internal/telemetry"
)

// DuplicatePolicy controls what happens when two records in the same
// gather batch carry the same identifier.
type DuplicatePolicy string

const (
	// the later record silently replaces the earlier one, with a warning
	DuplicateOverwrite DuplicatePolicy = "overwrite"
	// the whole gather batch is rejected
	DuplicateFail DuplicatePolicy = "fail"
)

// Diff partitions the gathered guids against the stored snapshot.
// New, Change and Delete together cover the union of both sets exactly.
type Diff struct {
	New    []string
	Change []string
	Delete []string
}

// DiffGUIDs computes the three-way set reconciliation between the guids
// currently in the store and the guids produced by this gather pass.
func DiffGUIDs(inStore map[string]string, inHarvest map[string]struct{}) Diff {
	stored := keySet(inStore)
	return Diff{
		New:    missingFrom(inHarvest, stored),
		Change: inBoth(inHarvest, stored),
		Delete: missingFrom(stored, inHarvest),
	}
}

// GatherReport summarizes one gather cycle.
type GatherReport struct {
	Gathered int
	Skipped  int
	New      int
	Changed  int
	Deleted  int
	// per-record failures; these never abort the batch
	Errors []SkipReason
}

// gatherContext is the scratch state of a single gather cycle. It is
// created per call and discarded afterwards, never stored on the engine.
type gatherContext struct {
	namesTaken       map[string]struct{}
	identifierCounts map[string]int
}

func newGatherContext() *gatherContext {
	return &gatherContext{
		namesTaken:       make(map[string]struct{}),
		identifierCounts: make(map[string]int),
	}
}

// uniqueName derives a catalog slug for the dataset, resolving collisions
// against names already assigned in this cycle by appending a numeric
// suffix. Collision resolution is in-memory only; it is not a global
// uniqueness check against the catalog. The suffix depends on the order
// records arrived this cycle, so a colliding name can drift between
// cycles; catalog packages are always addressed by their explicit id,
// never by name, so drift only changes the display slug.
func (g *gatherContext) uniqueName(title, identifier string) string {
	base := Slugify(title)
	if base == "" {
		base = Slugify(identifier)
	}
	if base == "" {
		base = "dataset"
	}
	name := base
	for i := 1; ; i++ {
		if _, taken := g.namesTaken[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s-%d", base, i)
	}
	g.namesTaken[name] = struct{}{}
	return name
}

// Slugify lowers a title into a catalog name: diacritics folded away,
// runs of non-alphanumerics collapsed to single hyphens, trimmed to 90
// chars.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range norm.NFD.String(strings.ToLower(s)) {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining mark left over from decomposition
		case r < 128 && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
		if b.Len() >= 90 {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}

// SyncEngine classifies gathered records against the stored state and
// emits one queued object per classification. The same engine is used by
// every harvester variant.
type SyncEngine struct {
	store  ObjectStore
	policy DuplicatePolicy
}

func NewSyncEngine(store ObjectStore, policy DuplicatePolicy) *SyncEngine {
	if policy == "" {
		policy = DuplicateOverwrite
	}
	return &SyncEngine{store: store, policy: policy}
}

// Gather runs one sync cycle for a source: processes every collected
// record, diffs the gathered guids against the current snapshot and
// stores one object per new, changed and deleted guid. For deleted guids
// the previous objects are flipped to non-current before this function
// returns, so a crashed import stage can never leave two current objects
// for the same guid.
func (e *SyncEngine) Gather(ctx context.Context, sourceID string, results []RecordResult) ([]*Object, *GatherReport, error) {
	ctx, span := telemetry.SubSpanFromCtxWithName(ctx, "gather_"+sourceID)
	defer span.End()

	// the snapshot is re-read fresh at the start of every cycle
	snapshot, err := e.store.CurrentGUIDs(ctx, sourceID)
	if err != nil {
		return nil, nil, fmt.Errorf("reading current guid snapshot: %w", err)
	}

	report := &GatherReport{}
	gc := newGatherContext()

	datasetsToHarvest := make(map[string]*Dataset)

	for _, res := range results {
		if res.Skip != nil {
			report.Skipped++
			report.Errors = append(report.Errors, *res.Skip)
			log.Warnf("skipping record %q: %s", res.Skip.GUID, res.Skip.Message)
			continue
		}
		if res.Dataset == nil {
			report.Skipped++
			report.Errors = append(report.Errors, SkipReason{GUID: res.GUID, Message: "collector produced no dataset"})
			continue
		}
		d := res.Dataset
		if d.Identifier == "" {
			if res.GUID != "" {
				d.Identifier = res.GUID
			} else {
				d.Identifier = uuid.NewString()
				log.Debugf("record without identifier, generated %s", d.Identifier)
			}
		}
		d.Name = gc.uniqueName(d.Title, d.Identifier)

		gc.identifierCounts[d.Identifier]++
		if gc.identifierCounts[d.Identifier] > 1 {
			if e.policy == DuplicateFail {
				return nil, nil, fmt.Errorf("duplicate identifier %q in gather batch", d.Identifier)
			}
			log.Warnf("duplicate identifier %q detected in the same gather batch; this dataset will overwrite the previous one", d.Identifier)
		}
		datasetsToHarvest[d.Identifier] = d
	}

	guidsInHarvest := make(map[string]struct{}, len(datasetsToHarvest))
	for guid := range datasetsToHarvest {
		guidsInHarvest[guid] = struct{}{}
	}
	report.Gathered = len(guidsInHarvest)

	diff := DiffGUIDs(snapshot, guidsInHarvest)
	report.New, report.Changed, report.Deleted = len(diff.New), len(diff.Change), len(diff.Delete)
	span.SetAttributes(
		attribute.Int("guids_new", len(diff.New)),
		attribute.Int("guids_changed", len(diff.Change)),
		attribute.Int("guids_deleted", len(diff.Delete)),
	)
	log.Infof("gather for %s: %d new, %d changed, %d deleted, %d skipped",
		sourceID, len(diff.New), len(diff.Change), len(diff.Delete), report.Skipped)

	var objects []*Object

	for _, guid := range diff.New {
		obj, err := e.buildObject(sourceID, guid, datasetsToHarvest[guid], StatusNew, "")
		if err != nil {
			return nil, nil, err
		}
		objects = append(objects, obj)
	}
	for _, guid := range diff.Change {
		obj, err := e.buildObject(sourceID, guid, datasetsToHarvest[guid], StatusChange, snapshot[guid])
		if err != nil {
			return nil, nil, err
		}
		objects = append(objects, obj)
	}
	for _, guid := range diff.Delete {
		obj, err := e.buildObject(sourceID, guid, &Dataset{Identifier: guid}, StatusDelete, snapshot[guid])
		if err != nil {
			return nil, nil, err
		}
		// delete objects become current immediately; the previous rows
		// are flipped here in the gather stage, not deferred to import
		if _, err := e.store.MarkNotCurrent(ctx, sourceID, guid); err != nil {
			return nil, nil, fmt.Errorf("flipping previous objects for %s: %w", guid, err)
		}
		obj.Current = true
		objects = append(objects, obj)
	}

	for _, obj := range objects {
		if err := e.store.Insert(ctx, obj); err != nil {
			return nil, nil, fmt.Errorf("storing harvest object for %s: %w", obj.GUID, err)
		}
	}
	return objects, report, nil
}

func (e *SyncEngine) buildObject(sourceID, guid string, d *Dataset, status Status, packageID string) (*Object, error) {
	content, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("serializing record %s: %w", guid, err)
	}
	return &Object{
		ID:        uuid.NewString(),
		SourceID:  sourceID,
		GUID:      guid,
		Content:   content,
		Status:    status,
		State:     StateNew,
		PackageID: packageID,
	}, nil
}
