package merge

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/repsync/internal/model"
)

func official(id, name string) model.ExerciseDef {
	return model.ExerciseDef{ID: id, Name: name, Source: model.SourceOfficial, ReadOnly: true}
}

func personal(id, name string) model.ExerciseDef {
	return model.ExerciseDef{ID: id, Name: name, Source: model.SourcePersonal}
}

func names(items []model.ExerciseDef) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Name)
	}
	return out
}

func TestMerge_PersonalOverridesOfficial(t *testing.T) {
	merged := Merge(
		[]model.ExerciseDef{official("e1", "Squat")},
		[]model.ExerciseDef{personal("e1", "Squat (custom)")},
		ExercisesByName(),
	)

	require.Len(t, merged, 1)
	assert.Equal(t, "e1", merged[0].ID)
	assert.Equal(t, "Squat (custom)", merged[0].Name)
	assert.Equal(t, model.SourcePersonal, merged[0].Source)
}

func TestMerge_OfficialFirstThenAlphabetical(t *testing.T) {
	merged := Merge(
		[]model.ExerciseDef{official("e2", "squat"), official("e1", "Bench Press")},
		[]model.ExerciseDef{personal("p2", "zottman curl"), personal("p1", "Arnold Press")},
		ExercisesByName(),
	)

	assert.Equal(t, []string{"Bench Press", "squat", "Arnold Press", "zottman curl"}, names(merged))
}

func TestMerge_IsPure(t *testing.T) {
	off := []model.ExerciseDef{official("e1", "Squat"), official("e2", "Deadlift")}
	per := []model.ExerciseDef{personal("p1", "Curl")}

	first := Merge(off, per, ExercisesByName())
	second := Merge(off, per, ExercisesByName())

	assert.Equal(t, first, second)
	assert.Equal(t, "Squat", off[0].Name, "inputs untouched")
	assert.Equal(t, []model.ExerciseDef{official("e1", "Squat"), official("e2", "Deadlift")}, off)
}

func TestMerge_EmptyInputs(t *testing.T) {
	merged := Merge[model.ExerciseDef](nil, nil, ExercisesByName())
	assert.NotNil(t, merged)
	assert.Empty(t, merged)
}

func TestMerge_TiesBreakByID(t *testing.T) {
	merged := Merge(
		nil,
		[]model.ExerciseDef{personal("b", "Row"), personal("a", "row")},
		ExercisesByName(),
	)
	assert.Equal(t, "a", merged[0].ID)
	assert.Equal(t, "b", merged[1].ID)
}

func TestByName_CollationAware(t *testing.T) {
	less := ExercisesByName()

	assert.True(t, less(personal("1", "bench"), personal("2", "Curl")), "case-insensitive")
	assert.True(t, less(personal("1", "Överhead Press"), personal("2", "Squat")), "diacritics sort with base letter")
	assert.True(t, less(personal("1", "Row 2"), personal("2", "Row 10")), "numeric")
	assert.False(t, less(personal("1", "Squat"), personal("2", "squat")))
}

func TestTemplatesNewestFirst(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tpl := func(id string, source model.Source, age time.Duration) model.WorkoutTemplate {
		return model.WorkoutTemplate{ID: id, Name: id, Source: source, CreatedAt: base.Add(-age)}
	}

	merged := Merge(
		[]model.WorkoutTemplate{tpl("o-old", model.SourceOfficial, 48*time.Hour), tpl("o-new", model.SourceOfficial, time.Hour)},
		[]model.WorkoutTemplate{tpl("p-old", model.SourcePersonal, 72*time.Hour), tpl("p-new", model.SourcePersonal, 0)},
		TemplatesNewestFirst(),
	)

	ids := make([]string, 0, len(merged))
	for _, m := range merged {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"o-new", "o-old", "p-new", "p-old"}, ids)
}

func TestUnionByID_RemoteWins(t *testing.T) {
	remote := []model.WorkoutTemplate{
		{ID: "t1", Name: "Push (remote)"},
		{ID: "t2", Name: "Pull"},
	}
	cached := []model.WorkoutTemplate{
		{ID: "t3", Name: "Legs"},
		{ID: "t1", Name: "Push (stale)"},
	}

	union := UnionByID(remote, cached)

	require.Len(t, union, 3)
	assert.Equal(t, "Push (remote)", union[0].Name)
	assert.Equal(t, "Pull", union[1].Name)
	assert.Equal(t, "Legs", union[2].Name)
}

func TestUnionByID_Empty(t *testing.T) {
	assert.Empty(t, UnionByID[model.WorkoutTemplate](nil, nil))
	assert.Len(t, UnionByID(nil, []model.WorkoutTemplate{{ID: "t1"}}), 1)
}

func renderCatalog(items []model.ExerciseDef) []byte {
	var buf bytes.Buffer
	for _, item := range items {
		fmt.Fprintf(&buf, "%s\t%s\t%s\n", item.Source, item.ID, item.Name)
	}
	return buf.Bytes()
}

func TestMerge_ExerciseCatalogGolden(t *testing.T) {
	merged := Merge(
		[]model.ExerciseDef{
			official("e1", "Squat"),
			official("e4", "Överhead Press"),
			official("e2", "bench press"),
			official("e3", "Deadlift"),
		},
		[]model.ExerciseDef{
			personal("p2", "Zercher Squat"),
			personal("e1", "Squat (custom)"),
			personal("p1", "cable fly"),
		},
		ExercisesByName(),
	)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "exercise_catalog", renderCatalog(merged))
}
