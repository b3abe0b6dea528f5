package staging

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/uni-comb/app/university"
)

var stamp = time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func testRecords() []university.Record {
	return []university.Record{
		{
			Name:           "Alpha University",
			Country:        "Canada",
			StateProvince:  strPtr("Ontario"),
			AlphaTwoCode:   strPtr("CA"),
			Domains:        []string{"alpha.ca", "alpha.edu"},
			WebPages:       []string{"https://alpha.ca"},
			PrimaryDomain:  strPtr("alpha.ca"),
			PrimaryWebsite: strPtr("https://alpha.ca"),
			LastUpdated:    stamp,
		},
		{
			Name:           "Beta, College",
			Country:        "Peru",
			StateProvince:  strPtr(""),
			Domains:        []string{},
			WebPages:       []string{"https://beta.pe"},
			PrimaryWebsite: strPtr("https://beta.pe"),
			LastUpdated:    stamp,
		},
	}
}

func readCSV(t *testing.T, store *Store) [][]string {
	t.Helper()
	rc, size, err := store.OpenCSV()
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "data"))

	require.NoError(t, store.Write(context.Background(), testRecords()))

	records, err := store.ReadJSON()
	require.NoError(t, err)
	require.Len(t, records, 2)

	want := testRecords()
	for i := range want {
		assert.True(t, want[i].LastUpdated.Equal(records[i].LastUpdated))
		records[i].LastUpdated = want[i].LastUpdated
		assert.Equal(t, want[i], records[i])
	}

	// Absent and empty stay distinct in the structured form.
	assert.Nil(t, records[1].AlphaTwoCode)
	require.NotNil(t, records[1].StateProvince)
	assert.Equal(t, "", *records[1].StateProvince)
	assert.Nil(t, records[1].PrimaryDomain)
}

func TestStoreJSONShape(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Write(context.Background(), testRecords()))

	data, err := os.ReadFile(store.JSONPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {\n    \"name\": \"Alpha University\"")

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	value, present := raw[1]["alpha_two_code"]
	assert.True(t, present)
	assert.Nil(t, value)
	assert.Equal(t, "", raw[1]["state_province"])
	assert.Equal(t, []any{}, raw[1]["domains"])
}

func TestStoreCSV(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Write(context.Background(), testRecords()))

	rows := readCSV(t, store)
	require.Len(t, rows, 3)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{
		"Alpha University", "Canada", "Ontario", "CA", "alpha.ca", "https://alpha.ca", "2024-05-01T08:30:00Z",
	}, rows[1])
	assert.Equal(t, []string{
		"Beta, College", "Peru", "", "", "", "https://beta.pe", "2024-05-01T08:30:00Z",
	}, rows[2])
}

func TestStoreMissingArtifacts(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.ReadJSON()
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = store.OpenCSV()
	assert.ErrorIs(t, err, ErrNotFound)

	status := store.Status()
	assert.False(t, status["json"].Exists)
	assert.False(t, status["csv"].Exists)
}

func TestStoreOverwritesGeneration(t *testing.T) {
	store := NewStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, testRecords()))
	require.NoError(t, store.Write(ctx, testRecords()[:1]))

	records, err := store.ReadJSON()
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Len(t, readCSV(t, store), 2)

	require.NoError(t, store.Write(ctx, nil))
	records, err = store.ReadJSON()
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.Len(t, readCSV(t, store), 1)
}

func TestStoreEnsureDirIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	store := NewStore(dir)

	require.NoError(t, store.EnsureDir())
	require.NoError(t, store.EnsureDir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStoreConcurrentWriters(t *testing.T) {
	store := NewStore(t.TempDir())
	all := testRecords()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Write(context.Background(), all[:1+i%2]))
		}()
	}
	wg.Wait()

	records, err := store.ReadJSON()
	require.NoError(t, err)
	assert.Contains(t, []int{1, 2}, len(records))
	assert.Len(t, readCSV(t, store), len(records)+1)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	for _, entry := range entries {
		assert.Contains(t, []string{JSONFileName, CSVFileName, lockFileName}, entry.Name())
	}
}

func TestStoreStatus(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Write(context.Background(), testRecords()))

	status := store.Status()
	assert.True(t, status["json"].Exists)
	assert.True(t, status["csv"].Exists)
	assert.NotNil(t, status["csv"].ModifiedAt)
	assert.Greater(t, status["json"].Size, int64(0))
}
