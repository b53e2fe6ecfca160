package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func float64Ptr(v float64) *float64 { return &v }

func sampleDetections() []Detection {
	return []Detection{
		NewDetection("/home/user/recordings/morning/audio.wav", "Passer domesticus_House Sparrow", 0.8542, 0, 3),
		NewDetection("/home/user/recordings/morning/audio.wav", "Erithacus rubecula_European Robin", 0.61, 3, 6),
		NewDetection("/home/user/recordings/morning/audio.wav", "Passer domesticus_House Sparrow", 0.42, 6, 9),
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestSplitLabel(t *testing.T) {
	t.Parallel()

	sci, com := SplitLabel("Passer domesticus_House Sparrow")
	assert.Equal(t, "Passer domesticus", sci)
	assert.Equal(t, "House Sparrow", com)

	sci, com = SplitLabel("Unknown Species")
	assert.Equal(t, "Unknown Species", sci)
	assert.Equal(t, "Unknown Species", com)

	// only the first underscore separates
	sci, com = SplitLabel("Genus species_Name_With_Underscores")
	assert.Equal(t, "Genus species", sci)
	assert.Equal(t, "Name_With_Underscores", com)
}

func TestSortDetections(t *testing.T) {
	t.Parallel()

	dets := []Detection{
		{ScientificName: "c", StartTime: 3, Confidence: 0.9},
		{ScientificName: "a", StartTime: 0, Confidence: 0.5},
		{ScientificName: "b", StartTime: 0, Confidence: 0.7},
	}
	SortDetections(dets)

	assert.Equal(t, "b", dets[0].ScientificName)
	assert.Equal(t, "a", dets[1].ScientificName)
	assert.Equal(t, "c", dets[2].ScientificName)
}

func TestSuffix(t *testing.T) {
	t.Parallel()

	s, err := Suffix(FormatRaven)
	require.NoError(t, err)
	assert.Equal(t, ".BirdNET.selection.table.txt", s)

	_, err = Suffix("xml")
	require.Error(t, err)

	_, err = New("xml", filepath.Join(t.TempDir(), "x"), nil)
	require.Error(t, err)
}

func TestCSVWriter(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.csv")
	dets := sampleDetections()
	dets[0].Metadata.Lat = float64Ptr(60.17)
	week := 22
	dets[0].Metadata.Week = &week
	dets[0].Metadata.Model = "birdnet"
	dets[1].CommonName = `Robin, "European"`

	err := WriteFile(FormatCSV, path, dets, &Options{CSVBOM: true, CSVColumns: []string{"lat", "week", "model"}})
	require.NoError(t, err)

	content := readFile(t, path)
	require.True(t, strings.HasPrefix(content, utf8BOM))

	lines := strings.Split(strings.TrimSuffix(strings.TrimPrefix(content, utf8BOM), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Start (s),End (s),Scientific name,Common name,Confidence,File,lat,week,model", lines[0])
	assert.Equal(t, "0.0,3.0,Passer domesticus,House Sparrow,0.8542,/home/user/recordings/morning/audio.wav,60.17,22,birdnet", lines[1])
	assert.Equal(t, `3.0,6.0,Erithacus rubecula,"Robin, ""European""",0.6100,/home/user/recordings/morning/audio.wav,,,`, lines[2])
}

func TestCSVWriterWithoutBOM(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteFile(FormatCSV, path, nil, &Options{}))
	assert.Equal(t, "Start (s),End (s),Scientific name,Common name,Confidence,File\n", readFile(t, path))
}

func TestRavenWriter(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, WriteFile(FormatRaven, path, sampleDetections(), nil))

	lines := strings.Split(strings.TrimSpace(readFile(t, path)), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Selection\tView\tChannel\tBegin Time (s)"))
	assert.Equal(t,
		"1\tSpectrogram 1\t1\t0.0\t3.0\t150\t15000\tHouse_Sparrow\thouspa\t0.8542\t/home/user/recordings/morning/audio.wav\t0.0",
		lines[1])
	assert.True(t, strings.HasPrefix(lines[3], "3\t"))
}

func TestSpeciesCode(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"House Sparrow":             "houspa",
		"European Robin":            "eurrob",
		"Robin":                     "robi",
		"Owl":                       "owl",
		"":                          "unkn",
		"Black-capped Chickadee":    "blachi",
		"Northern Rough-winged Swa": "norswa",
	}
	for name, want := range tests {
		assert.Equal(t, want, SpeciesCode(name), name)
	}
}

func TestAudacityWriter(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.txt")
	dets := sampleDetections()[:1]
	dets[0].CommonName = "Sparrow_House"
	require.NoError(t, WriteFile(FormatAudacity, path, dets, nil))

	assert.Equal(t, "0.0\t3.0\tSparrow, House\t0.8542\n", readFile(t, path))
}

func TestKaleidoscopeWriter(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteFile(FormatKaleidoscope, path, sampleDetections()[:1], nil))

	lines := strings.Split(strings.TrimSpace(readFile(t, path)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "INDIR,FOLDER,IN FILE,OFFSET,DURATION,TOP1MATCH,TOP1DIST", lines[0])
	assert.Equal(t, "/home/user/recordings,morning,audio.wav,0.0,3.0,House_Sparrow,0.8542", lines[1])
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.json")
	date := time.Date(2026, 5, 1, 6, 30, 0, 0, time.UTC)
	err := WriteFile(FormatJSON, path, sampleDetections(), &Options{
		SourceFile:    "/home/user/recordings/morning/audio.wav",
		RunID:         "run-1",
		Model:         "birdnet",
		MinConfidence: 0.1,
		Latitude:      float64Ptr(60.17),
		Longitude:     float64Ptr(24.94),
		AudioDuration: 9,
		AnalysisDate:  date,
	})
	require.NoError(t, err)

	var doc ResultDocument
	require.NoError(t, json.Unmarshal([]byte(readFile(t, path)), &doc))

	assert.Equal(t, "audio.wav", doc.SourceFile)
	assert.Equal(t, "run-1", doc.RunID)
	assert.Equal(t, "2026-05-01T06:30:00Z", doc.AnalysisDate)
	assert.Nil(t, doc.Settings.Week)
	require.NotNil(t, doc.Settings.Lat)
	assert.Len(t, doc.Detections, 3)
	assert.Equal(t, 3, doc.Summary.TotalDetections)
	assert.Equal(t, 2, doc.Summary.UniqueSpecies)
	assert.InDelta(t, 9.0, doc.Summary.AudioDurationSeconds, 1e-9)
}

func TestJSONWriterEmptyHasDetectionArray(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, WriteFile(FormatJSON, path, nil, &Options{SourceFile: "a.wav"}))
	assert.Contains(t, readFile(t, path), `"detections": []`)
}

func TestParquetWriter(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.parquet")
	dets := sampleDetections()
	dets[0].Metadata.Lat = float64Ptr(60.17)
	require.NoError(t, WriteFile(FormatParquet, path, dets, nil))

	rows, err := parquet.ReadFile[ParquetRow](path)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Passer domesticus", rows[0].ScientificName)
	assert.Equal(t, "audio.wav", rows[0].File)
	require.NotNil(t, rows[0].Lat)
	assert.InDelta(t, 60.17, *rows[0].Lat, 1e-9)
	assert.Nil(t, rows[1].Lat)
}

func TestSQLiteWriter(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.sqlite")
	require.NoError(t, WriteFile(FormatSQLite, path, sampleDetections(), &Options{RunID: "run-7"}))
	// a second run replaces the database instead of appending
	require.NoError(t, WriteFile(FormatSQLite, path, sampleDetections()[:1], &Options{RunID: "run-8"}))

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	var records []DetectionRecord
	require.NoError(t, db.Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, "run-8", records[0].RunID)
	assert.Equal(t, "audio.wav", records[0].File)
}

func TestWriterRejectsWriteAfterFinalize(t *testing.T) {
	t.Parallel()

	for _, format := range []string{FormatCSV, FormatRaven, FormatJSON, FormatParquet} {
		t.Run(format, func(t *testing.T) {
			t.Parallel()

			w, err := New(format, filepath.Join(t.TempDir(), "out"), &Options{})
			require.NoError(t, err)
			require.NoError(t, w.WriteHeader())
			require.NoError(t, w.Finalize())
			require.NoError(t, w.Finalize())

			d := sampleDetections()[0]
			assert.Error(t, w.WriteDetection(&d))
		})
	}
}

func TestNewFailsOnMissingDirectory(t *testing.T) {
	t.Parallel()

	_, err := New(FormatCSV, filepath.Join(t.TempDir(), "missing", "out.csv"), nil)
	require.Error(t, err)
}

func TestWriteCombined(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dets := append(sampleDetections(), NewDetection("/data/b.wav", "Turdus merula_Eurasian Blackbird", 0.9, 0, 3))

	written, err := WriteCombined(dir, "BirdNET", []string{FormatCSV, FormatAudacity, FormatRaven}, dets, &Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "BirdNET_CombinedTable.csv"),
		filepath.Join(dir, "BirdNET_SelectionTable.txt"),
	}, written)

	content := readFile(t, written[0])
	assert.Contains(t, content, "audio.wav")
	assert.Contains(t, content, "/data/b.wav")
}
