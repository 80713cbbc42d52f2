package watch

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/edkit/filewatch/internal/notify"
)

// eventKind is the classification of one emitted event.
type eventKind int

const (
	eventCreate eventKind = iota
	eventChange
	eventDelete
	eventRename
)

// String returns a human-readable representation of the event kind.
func (k eventKind) String() string {
	switch k {
	case eventCreate:
		return "create"
	case eventChange:
		return "change"
	case eventDelete:
		return "delete"
	case eventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// event is one reconciled event. Location is the absolute path; OldLocation
// is set for renames only.
type event struct {
	kind        eventKind
	location    string
	oldLocation string
}

// reconciler classifies the raw change records of one batch into emitted
// events and heuristically infers renames. It is pure: no state, no I/O.
type reconciler struct {
	pattern      string
	ignoreCreate bool
	ignoreChange bool
	ignoreDelete bool
}

// reconcile turns one batch into an ordered event list.
//
// Records that are not regular files, or whose name does not match the glob
// pattern, produce nothing. Per-record events fire in batch order, suppressed
// by the corresponding ignore flag. Renames fire after the per-record events
// and are never suppressed; a rename is always emitted in addition to the
// delete and create it was inferred from.
//
// Two heuristics infer renames, and both run:
//
//   - Pairwise: exactly two qualifying records, the first vanished and the
//     second appeared, with equal sizes.
//   - Batch: equal-count vanished/appeared partitions, each vanished record
//     greedily matched to the first unclaimed appeared record with the same
//     size and modification time.
//
// On a two-record batch whose pair also shares a modification time the two
// heuristics overlap and the same rename is emitted twice. The watching
// service offers no content hash, so size plus mtime is the only available
// fingerprint; unrelated files sharing both can be mis-paired, and a rename
// split across batches degrades to delete plus create.
func (r reconciler) reconcile(batch notify.ChangeBatch) []event {
	var filtered []notify.ChangeRecord
	for _, rec := range batch.Records {
		if rec.Type != notify.EntryFile {
			continue
		}
		if ok, err := doublestar.Match(r.pattern, rec.RelativeName); err != nil || !ok {
			continue
		}
		filtered = append(filtered, rec)
	}

	var events []event
	for _, rec := range filtered {
		location := absLocation(batch.Root, rec.RelativeName)
		switch {
		case !rec.Exists:
			if !r.ignoreDelete {
				events = append(events, event{kind: eventDelete, location: location})
			}
		case rec.IsNew:
			if !r.ignoreCreate {
				events = append(events, event{kind: eventCreate, location: location})
			}
		default:
			if !r.ignoreChange {
				events = append(events, event{kind: eventChange, location: location})
			}
		}
	}

	events = append(events, r.pairwiseRename(batch.Root, filtered)...)
	events = append(events, r.batchRename(batch.Root, filtered)...)
	return events
}

// pairwiseRename handles the two-record case: one file gone, one file
// appeared, same size.
func (r reconciler) pairwiseRename(root string, records []notify.ChangeRecord) []event {
	if len(records) != 2 {
		return nil
	}
	gone, appeared := records[0], records[1]
	if gone.Exists || !appeared.Exists {
		return nil
	}
	if gone.Size != appeared.Size {
		return nil
	}
	return []event{{
		kind:        eventRename,
		oldLocation: absLocation(root, gone.RelativeName),
		location:    absLocation(root, appeared.RelativeName),
	}}
}

// batchRename pairs vanished records with appeared records by fingerprint.
// The partitions must have equal counts; anything else means the batch is
// not a clean set of renames and no pairing is attempted.
func (r reconciler) batchRename(root string, records []notify.ChangeRecord) []event {
	if len(records) < 2 {
		return nil
	}

	var vanished, appeared []notify.ChangeRecord
	for _, rec := range records {
		if rec.Exists {
			appeared = append(appeared, rec)
		} else {
			vanished = append(vanished, rec)
		}
	}
	if len(vanished) == 0 || len(vanished) != len(appeared) {
		return nil
	}

	var events []event
	claimed := make([]bool, len(appeared))
	for _, gone := range vanished {
		for i, cand := range appeared {
			if claimed[i] {
				continue
			}
			if cand.Size == gone.Size && cand.ModTimeMs == gone.ModTimeMs {
				claimed[i] = true
				events = append(events, event{
					kind:        eventRename,
					oldLocation: absLocation(root, gone.RelativeName),
					location:    absLocation(root, cand.RelativeName),
				})
				break
			}
		}
		// An unmatched vanished record already produced its delete event;
		// no rename is inferred for it.
	}
	return events
}

func absLocation(root, relativeName string) string {
	return filepath.Join(root, filepath.FromSlash(relativeName))
}
