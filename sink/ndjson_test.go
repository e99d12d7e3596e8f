package sink

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foomo/gatherer/vo"
)

func testRecord(name string, points float64) vo.Record {
	return vo.Record{
		Fields: map[string]interface{}{
			"name":   name,
			"team":   "BOS",
			"points": points,
		},
		SourceURL:   "https://stats.example.com/leaders",
		ExtractedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNDJSONWritesOneLinePerRecord(t *testing.T) {
	buf := &bytes.Buffer{}
	n := NewNDJSON(buf, []string{"name", "team", "points"})

	require.NoError(t, n.Write(testRecord("A. Guard", 31.5)))
	require.NoError(t, n.Write(testRecord("B. Center", 27.1)))
	require.NoError(t, n.Flush())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	parsed := map[string]interface{}{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &parsed))
	assert.Equal(t, "A. Guard", parsed["name"])
	assert.Equal(t, 31.5, parsed["points"])
	assert.Equal(t, "https://stats.example.com/leaders", parsed["source_url"])
	assert.Equal(t, "2024-03-01T12:00:00Z", parsed["extracted_at"])
}

func TestNDJSONKeepsSchemaFieldOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	n := NewNDJSON(buf, []string{"name", "team", "points"})
	require.NoError(t, n.Write(testRecord("A. Guard", 31.5)))
	require.NoError(t, n.Flush())

	line := buf.String()
	assert.Less(t, strings.Index(line, `"name"`), strings.Index(line, `"team"`))
	assert.Less(t, strings.Index(line, `"team"`), strings.Index(line, `"points"`))
	// provenance always trails the schema columns
	assert.Less(t, strings.Index(line, `"points"`), strings.Index(line, `"source_url"`))
	assert.Less(t, strings.Index(line, `"source_url"`), strings.Index(line, `"extracted_at"`))
}

func TestNDJSONSkipsAbsentFields(t *testing.T) {
	buf := &bytes.Buffer{}
	n := NewNDJSON(buf, []string{"name", "team", "points", "rebounds"})

	record := testRecord("A. Guard", 31.5)
	delete(record.Fields, "team")
	require.NoError(t, n.Write(record))
	require.NoError(t, n.Flush())

	assert.NotContains(t, buf.String(), `"team"`)
	assert.NotContains(t, buf.String(), `"rebounds"`)
	assert.Contains(t, buf.String(), `"name"`)
}

func TestMultiFansOut(t *testing.T) {
	a, b := &Collect{}, &Collect{}
	m := Multi{a, b}

	require.NoError(t, m.Write(testRecord("A. Guard", 31.5)))
	require.NoError(t, m.Flush())
	require.NoError(t, m.Close())

	assert.Len(t, a.Records, 1)
	assert.Len(t, b.Records, 1)
}
