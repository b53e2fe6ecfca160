package species

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birda/internal/birdnet"
	"github.com/tphakala/birda/internal/conf"
	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/events"
)

func TestResolveWeek(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		opts    options
		want    int
		wantErr bool
	}{
		{name: "explicit week", opts: options{Week: 20}, want: 20},
		{name: "month and day", opts: options{Month: 1, Day: 1}, want: 1},
		{name: "current week", opts: options{}, want: 1},
		{name: "week too large", opts: options{Week: 49}, wantErr: true},
		{name: "bad month", opts: options{Month: 13, Day: 1}, wantErr: true},
		{name: "bad day", opts: options{Month: 5, Day: 32}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := resolveWeek(&tt.opts, now)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := options{Latitude: 60.17, Longitude: 24.94, Threshold: 0.03, Sort: SortFrequency, Output: "list.txt"}
	require.NoError(t, validate(&valid))

	for name, mutate := range map[string]func(*options){
		"latitude":  func(o *options) { o.Latitude = 91 },
		"longitude": func(o *options) { o.Longitude = -181 },
		"threshold": func(o *options) { o.Threshold = 1.5 },
		"sort":      func(o *options) { o.Sort = "random" },
		"output":    func(o *options) { o.Output = "" },
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			opts := valid
			mutate(&opts)
			require.Error(t, validate(&opts))
		})
	}
}

func TestResolveMetaModel(t *testing.T) {
	t.Parallel()

	s := conf.Defaults()
	s.Models = map[string]conf.ModelConfig{
		"own":     {Path: "a.tflite", Labels: "a.txt", MetaModel: "own_meta.tflite", Type: conf.ModelTypeBirdNETv24},
		"shared":  {Path: "b.tflite", Labels: "b.txt", Type: conf.ModelTypeBirdNETv24},
		"nolabel": {Path: "c.tflite", MetaModel: "meta.tflite", Type: conf.ModelTypeBirdNETv24},
	}

	meta, labels, err := resolveMetaModel(s, "own")
	require.NoError(t, err)
	assert.Equal(t, "own_meta.tflite", meta)
	assert.Equal(t, "a.txt", labels)

	_, _, err = resolveMetaModel(s, "shared")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	s.Defaults.MetaModel = "default_meta.tflite"
	meta, _, err = resolveMetaModel(s, "shared")
	require.NoError(t, err)
	assert.Equal(t, "default_meta.tflite", meta)

	_, _, err = resolveMetaModel(s, "nolabel")
	require.Error(t, err)

	_, _, err = resolveMetaModel(s, "missing")
	require.Error(t, err)
}

func TestBuildEntries(t *testing.T) {
	t.Parallel()

	scores := []birdnet.LocationScore{
		{Label: "Parus major_Great Tit", Score: 0.9},
		{Label: "Turdus merula_Eurasian Blackbird", Score: 0.5},
		{Label: "Cyanistes caeruleus_Eurasian Blue Tit", Score: 0.7},
		{Label: "Aquila chrysaetos_Golden Eagle", Score: 0.01},
	}

	byFreq := buildEntries(scores, 0.03, SortFrequency)
	require.Len(t, byFreq, 3)
	assert.Equal(t, "Parus major", byFreq[0].ScientificName)
	assert.Equal(t, "Great Tit", byFreq[0].CommonName)
	assert.Equal(t, "Cyanistes caeruleus", byFreq[1].ScientificName)
	assert.Equal(t, "Turdus merula", byFreq[2].ScientificName)

	byName := buildEntries(scores, 0.03, SortAlpha)
	require.Len(t, byName, 3)
	assert.Equal(t, "Cyanistes caeruleus", byName[0].ScientificName)
	assert.Equal(t, "Parus major", byName[1].ScientificName)
	assert.Equal(t, "Turdus merula", byName[2].ScientificName)
}

func TestWriteList(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "species_list.txt")
	entries := []events.SpeciesEntry{
		{ScientificName: "Parus major", CommonName: "Great Tit", Frequency: 0.9},
		{ScientificName: "Noise", CommonName: "Noise", Frequency: 0.5},
	}
	require.NoError(t, writeList(path, entries))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Parus major_Great Tit\nNoise\n", string(data))

	// Written lists load back as species lists.
	list, err := birdnet.ReadSpeciesList(path)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	err = writeList(filepath.Join(t.TempDir(), "missing", "list.txt"), entries)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}
