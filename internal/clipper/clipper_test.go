package clipper

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/events"
	"github.com/tphakala/birda/internal/myaudio"
	"github.com/tphakala/birda/internal/observability"
)

const testRate = 100

const detectionCSV = `Start (s),End (s),Scientific name,Common name,Confidence,File
0.0,3.0,Parus major,Great Tit,0.85,rec.wav
2.0,5.0,Parus major,Great Tit,0.92,rec.wav
12.0,15.0,Turdus merula,"Blackbird, Eurasian",0.40,rec.wav
16.0,19.0,Pica pica,Eurasian Magpie,0.10,rec.wav
`

// twentySeconds decodes every source as 20 s of a constant signal.
func twentySeconds(string) (*myaudio.Audio, error) {
	samples := make([]float32, 20*testRate)
	for i := range samples {
		samples[i] = 0.25
	}
	return &myaudio.Audio{Samples: samples, SampleRate: testRate, Duration: 20}, nil
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o600))
}

func TestParse(t *testing.T) {
	t.Parallel()

	dets, err := Parse(strings.NewReader(detectionCSV))
	require.NoError(t, err)
	require.Len(t, dets, 4)

	assert.Equal(t, Detection{Start: 0, End: 3, ScientificName: "Parus major", CommonName: "Great Tit", Confidence: 0.85}, dets[0])
	assert.Equal(t, "Blackbird, Eurasian", dets[2].CommonName)
	assert.InDelta(t, 0.10, dets[3].Confidence, 1e-9)
}

func TestParseToleratesBOMAndColumnOrder(t *testing.T) {
	t.Parallel()

	content := "\xEF\xBB\xBFConfidence,Common name,Scientific name,End (s),Start (s)\n0.5,Great Tit,Parus major,6,3\n\n"
	dets, err := Parse(strings.NewReader(content))
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.InDelta(t, 3.0, dets[0].Start, 1e-9)
	assert.InDelta(t, 6.0, dets[0].End, 1e-9)
	assert.Equal(t, "Parus major", dets[0].ScientificName)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"empty", "", "empty"},
		{"missing column", "Start (s),End (s),Scientific name,Confidence\n0,3,Parus major,0.5\n", `"Common name"`},
		{"end before start", "Start (s),End (s),Scientific name,Common name,Confidence\n5,3,Parus major,Great Tit,0.5\n", "before start"},
		{"bad number", "Start (s),End (s),Scientific name,Common name,Confidence\n0,3,Parus major,Great Tit,high\n", "invalid Confidence"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(strings.NewReader(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseFileCategorizesErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := ParseFile(filepath.Join(dir, "missing.csv"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	path := filepath.Join(dir, "empty.csv")
	touch(t, path)
	_, err = ParseFile(path)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))
}

func TestFilterByConfidence(t *testing.T) {
	t.Parallel()

	dets, err := Parse(strings.NewReader(detectionCSV))
	require.NoError(t, err)
	assert.Len(t, FilterByConfidence(dets, 0), 4)
	assert.Len(t, FilterByConfidence(dets, 0.4), 3)
	assert.Len(t, FilterByConfidence(dets, 0.9), 1)
}

func TestGroupDetectionsMergesChain(t *testing.T) {
	t.Parallel()

	dets := []Detection{
		{Start: 4, End: 7, ScientificName: "Parus major", Confidence: 0.6},
		{Start: 0, End: 3, ScientificName: "Parus major", Confidence: 0.5},
		{Start: 2, End: 5, ScientificName: "Parus major", Confidence: 0.9},
	}
	groups := GroupDetections(dets, 0, 0)
	require.Len(t, groups, 1)
	assert.InDelta(t, 0.0, groups[0].Start, 1e-9)
	assert.InDelta(t, 7.0, groups[0].End, 1e-9)
	assert.Equal(t, 3, groups[0].DetectionCount)
	assert.InDelta(t, 0.9, groups[0].MaxConfidence, 1e-9)
}

func TestGroupDetectionsPaddingAndSpecies(t *testing.T) {
	t.Parallel()

	dets := []Detection{
		{Start: 30, End: 33, ScientificName: "Parus major", Confidence: 0.5},
		{Start: 1, End: 4, ScientificName: "Parus major", Confidence: 0.7},
		{Start: 12, End: 15, ScientificName: "Parus major", Confidence: 0.8},
		{Start: 2, End: 5, ScientificName: "Turdus merula", Confidence: 0.4},
	}
	groups := GroupDetections(dets, 5, 5)
	require.Len(t, groups, 3)

	// [0,9] and [7,20] overlap once padded; [25,38] stays apart.
	assert.Equal(t, "Parus major", groups[0].ScientificName)
	assert.InDelta(t, 0.0, groups[0].Start, 1e-9)
	assert.InDelta(t, 20.0, groups[0].End, 1e-9)
	assert.Equal(t, 2, groups[0].DetectionCount)

	assert.Equal(t, "Turdus merula", groups[1].ScientificName)
	assert.InDelta(t, 0.0, groups[1].Start, 1e-9)

	assert.InDelta(t, 25.0, groups[2].Start, 1e-9)
	assert.InDelta(t, 38.0, groups[2].End, 1e-9)

	counts := map[string]int{}
	for _, g := range groups {
		counts[g.ScientificName] += g.DetectionCount
		assert.GreaterOrEqual(t, g.Start, 0.0)
		assert.GreaterOrEqual(t, g.End, g.Start)
	}
	assert.Equal(t, map[string]int{"Parus major": 3, "Turdus merula": 1}, counts)
}

func TestGroupDetectionsEmpty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, GroupDetections(nil, 5, 5))
}

func TestFindSourceAudio(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	audio := filepath.Join(dir, "rec.flac")
	touch(t, audio)
	results := filepath.Join(dir, "rec.BirdNET.results.csv")

	got, err := FindSourceAudio(results, "", "")
	require.NoError(t, err)
	assert.Equal(t, audio, got)

	// full audio file name kept in the result name
	got, err = FindSourceAudio(filepath.Join(dir, "rec.flac.BirdNET.selection.table.txt"), "", "")
	require.NoError(t, err)
	assert.Equal(t, audio, got)

	other := t.TempDir()
	elsewhere := filepath.Join(other, "rec.wav")
	touch(t, elsewhere)
	got, err = FindSourceAudio(results, "", other)
	require.NoError(t, err)
	assert.Equal(t, elsewhere, got)

	got, err = FindSourceAudio(results, elsewhere, "")
	require.NoError(t, err)
	assert.Equal(t, elsewhere, got)

	_, err = FindSourceAudio(results, filepath.Join(dir, "nope.wav"), "")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))

	_, err = FindSourceAudio(filepath.Join(dir, "missing.BirdNET.results.csv"), "", "")
	require.Error(t, err)
}

func TestFindSourceAudioRejectsTraversal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a..b.wav"))

	_, err := FindSourceAudio(filepath.Join(dir, "a..b.BirdNET.results.csv"), "", "")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))
}

func TestSanitizeName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Parus major", SanitizeName("Parus major"))
	assert.Equal(t, "a_b_c_d_e_f_g_h_i_j", SanitizeName(`a/b\c:d*e?f"g<h>i|j`))
	assert.Equal(t, "unknown", SanitizeName(".."))
	assert.Equal(t, "unknown", SanitizeName(""))
}

func TestClipWriter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	group := &DetectionGroup{ScientificName: "Parus major", Start: 12, End: 20, MaxConfidence: 0.853}
	w := NewClipWriter(dir, false)

	want := filepath.Join(dir, "Parus major", "Parus major_85p_12.0-20.0.wav")
	assert.Equal(t, want, w.ClipPath(group))

	samples := make([]float32, 8*testRate)
	path, skipped, err := w.Write(samples, testRate, group)
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.FileExists(t, path)

	_, skipped, err = w.Write(samples, testRate, group)
	require.NoError(t, err)
	assert.True(t, skipped)

	_, skipped, err = NewClipWriter(dir, true).Write(samples, testRate, group)
	require.NoError(t, err)
	assert.False(t, skipped)
}

func TestSourceExtractClampsEnd(t *testing.T) {
	t.Parallel()

	source, err := NewExtractor(twentySeconds, nil).Open("rec.wav")
	require.NoError(t, err)
	assert.InDelta(t, 20.0, source.Duration(), 1e-9)

	clip, err := source.Extract(&DetectionGroup{Start: 15, End: 25})
	require.NoError(t, err)
	assert.InDelta(t, 20.0, clip.End, 1e-9)
	assert.Len(t, clip.Samples, 5*testRate)

	_, err = source.Extract(&DetectionGroup{Start: 21, End: 25})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryClip))
}

func TestClipperRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, filepath.Join(dir, "rec.wav"))
	results := filepath.Join(dir, "rec.BirdNET.results.csv")
	require.NoError(t, os.WriteFile(results, []byte(detectionCSV), 0o600))
	orphan := filepath.Join(dir, "gone.BirdNET.results.csv")
	require.NoError(t, os.WriteFile(orphan, []byte(detectionCSV), 0o600))

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	var seen []events.ClipEntry
	outDir := filepath.Join(dir, "clips")
	c := New(Options{OutputDir: outDir, MinConfidence: 0.3, PreRoll: 1, PostRoll: 1, Workers: 2},
		WithDecoder(twentySeconds),
		WithMetrics(m.Clip),
		WithClipCallback(func(e events.ClipEntry) { seen = append(seen, e) }))

	res, err := c.Run(context.Background(), []string{results, orphan})
	require.NoError(t, err)

	assert.Equal(t, events.ResultClipExtraction, res.ResultType)
	assert.Equal(t, outDir, res.OutputDir)
	assert.Equal(t, 1, res.TotalFiles)
	require.Equal(t, 2, res.TotalClips)
	assert.Len(t, seen, 2)

	first := res.Clips[0]
	assert.Equal(t, "Parus major", first.ScientificName)
	assert.InDelta(t, 0.92, first.Confidence, 1e-9)
	assert.InDelta(t, 0.0, first.StartTime, 1e-9)
	assert.InDelta(t, 6.0, first.EndTime, 1e-9)
	assert.Equal(t, filepath.Join(dir, "rec.wav"), first.SourceAudio)
	assert.FileExists(t, first.OutputFile)
	assert.FileExists(t, res.Clips[1].OutputFile)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Clip.ClipsTotal.WithLabelValues(StatusWritten)), 0)
	assert.InDelta(t, 6+5, testutil.ToFloat64(m.Clip.ClipSeconds), 1e-9)

	// a second run keeps the existing clips
	res, err = c.Run(context.Background(), []string{results})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalClips)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Clip.ClipsTotal.WithLabelValues(StatusSkipped)), 0)
}

func TestClipperRunCancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, filepath.Join(dir, "rec.wav"))
	results := filepath.Join(dir, "rec.BirdNET.results.csv")
	require.NoError(t, os.WriteFile(results, []byte(detectionCSV), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(Options{OutputDir: filepath.Join(dir, "clips")}, WithDecoder(twentySeconds))
	_, err := c.Run(ctx, []string{results})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
}

func TestExtractRange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	audio := filepath.Join(dir, "rec.wav")
	touch(t, audio)
	c := New(Options{OutputDir: filepath.Join(dir, "clips"), PreRoll: 1, PostRoll: 1}, WithDecoder(twentySeconds))

	res, err := c.ExtractRange(audio, 2, 5)
	require.NoError(t, err)
	require.Len(t, res.Clips, 1)
	clip := res.Clips[0]
	assert.Equal(t, "detection_2-5", clip.ScientificName)
	assert.InDelta(t, 1.0, clip.Confidence, 1e-9)
	assert.InDelta(t, 1.0, clip.StartTime, 1e-9)
	assert.InDelta(t, 6.0, clip.EndTime, 1e-9)
	assert.FileExists(t, clip.OutputFile)
	assert.Equal(t, 1, res.TotalFiles)

	_, err = c.ExtractRange(audio, 5, 5)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = c.ExtractRange("", 1, 5)
	require.Error(t, err)

	_, err = c.ExtractRange(filepath.Join(dir, "missing.wav"), 1, 5)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))
}
