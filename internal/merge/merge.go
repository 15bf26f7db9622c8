// Package merge combines a curated content stream with a user's personal
// stream into one catalog.
//
// The merged view is a pure function of its two inputs. Catalog holds the
// inputs and recomputes the view whenever either one is replaced; nothing
// ever edits the view directly.
package merge

import (
	"sort"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/repsync/internal/model"
)

// Less orders two entries within the same source group.
type Less[T any] func(a, b T) bool

// Merge keys every official entry by id, then every personal entry,
// personal winning on collision. The result lists official-source entries
// first and personal ones after, each group ordered by less. Ties fall
// back to id so the output is deterministic.
func Merge[T model.Entity](official, personal []T, less Less[T]) []T {
	byID := make(map[string]T, len(official)+len(personal))
	for _, item := range official {
		byID[item.EntityID()] = item
	}
	for _, item := range personal {
		byID[item.EntityID()] = item
	}

	out := make([]T, 0, len(byID))
	for _, item := range byID {
		out = append(out, item)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ao, bo := model.IsOfficial(a), model.IsOfficial(b); ao != bo {
			return ao
		}
		if less != nil {
			if less(a, b) {
				return true
			}
			if less(b, a) {
				return false
			}
		}
		return a.EntityID() < b.EntityID()
	})
	return out
}

// ByName orders entries alphabetically by the given name, ignoring case
// and using English collation rules on NFC-normalized text.
//
// The returned function is safe for concurrent use.
func ByName[T any](name func(T) string) Less[T] {
	c := collate.New(language.English, collate.IgnoreCase, collate.Numeric)
	var mu sync.Mutex
	return func(a, b T) bool {
		na := norm.NFC.String(name(a))
		nb := norm.NFC.String(name(b))
		mu.Lock()
		defer mu.Unlock()
		return c.CompareString(na, nb) < 0
	}
}

// NewestFirst orders entries by creation time, most recent first.
func NewestFirst[T any](created func(T) time.Time) Less[T] {
	return func(a, b T) bool {
		return created(a).After(created(b))
	}
}

// ExercisesByName is the exercise catalog order.
func ExercisesByName() Less[model.ExerciseDef] {
	return ByName(func(e model.ExerciseDef) string { return e.Name })
}

// TemplatesNewestFirst is the template catalog order.
func TemplatesNewestFirst() Less[model.WorkoutTemplate] {
	return NewestFirst(func(t model.WorkoutTemplate) time.Time { return t.CreatedAt })
}

// UnionByID merges remote entries with locally cached ones, remote
// winning on collision. Remote entries keep their order and cached-only
// entries follow in theirs.
func UnionByID[T model.Entity](remote, cached []T) []T {
	seen := make(map[string]struct{}, len(remote))
	out := make([]T, 0, len(remote)+len(cached))
	for _, item := range remote {
		if _, dup := seen[item.EntityID()]; dup {
			continue
		}
		seen[item.EntityID()] = struct{}{}
		out = append(out, item)
	}
	for _, item := range cached {
		if _, dup := seen[item.EntityID()]; dup {
			continue
		}
		seen[item.EntityID()] = struct{}{}
		out = append(out, item)
	}
	return out
}
