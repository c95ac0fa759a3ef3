package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/fractal/pkg/models"
)

func init() {
	color.NoColor = true
}

func sampleRecord() *models.RunRecord {
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return &models.RunRecord{
		ID:                  "0123456789abcdef",
		Query:               "why is the sky blue",
		Goal:                "science",
		Depth:               2,
		Width:               2,
		Policy:              "flat",
		QuantumRuns:         1,
		TotalPossibleAgents: 3,
		ExecutedAgents:      3,
		Delegated:           true,
		FinalAnswer:         "Rayleigh scattering",
		StartedAt:           start,
		CompletedAt:         start.Add(1500 * time.Millisecond),
		Entries: []models.RunEntry{
			{LogEntry: models.LogEntry{Seq: 0, Layer: 1, Position: 0, Role: models.RoleLeaf, Path: []int{0},
				Task: "physics", Response: "light scatters\nmore detail"}},
			{LogEntry: models.LogEntry{Seq: 1, Layer: 0, Role: models.RoleRoot, Path: []int{},
				Task: "why is the sky blue", Response: "Root agent delegated", Delegated: true}},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "TEXT": FormatText, "json": FormatJSON, "yml": FormatYAML, " yaml ": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestWrite_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FromRecord(sampleRecord()), FormatText, Options{Verbose: true}))

	out := buf.String()
	assert.Contains(t, out, "Run 0123456789abcdef")
	assert.Contains(t, out, "depth 2, width 2, flat")
	assert.Contains(t, out, "3 of 3 executed")
	assert.Contains(t, out, "Elapsed: 1.5s")
	assert.Contains(t, out, "  [leaf 0] physics")
	assert.Contains(t, out, "-> light scatters ...")
	assert.Contains(t, out, "[root root] why is the sky blue")
	assert.Contains(t, out, "Final answer\nRayleigh scattering\n")
}

func TestWrite_TextQuietOmitsLog(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FromRecord(sampleRecord()), FormatText, Options{}))
	assert.NotContains(t, buf.String(), "Execution log")
}

func TestWrite_QuantumAnswers(t *testing.T) {
	rec := sampleRecord()
	rec.QuantumRuns = 2
	r := &Report{Run: rec, Answers: []RunAnswer{{Index: 0, Answer: "a"}, {Index: 1, Answer: "b"}}}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r, FormatText, Options{}))
	assert.Contains(t, buf.String(), "Runs:    2")
	assert.Contains(t, buf.String(), "Run 2 answer\nb\n")
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FromRecord(sampleRecord()), FormatJSON, Options{}))

	var decoded struct {
		Run models.RunRecord `json:"run"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "Rayleigh scattering", decoded.Run.FinalAnswer)
	assert.Len(t, decoded.Run.Entries, 2)
}

func TestWrite_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FromRecord(sampleRecord()), FormatYAML, Options{}))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	run := decoded["run"].(map[string]any)
	assert.Equal(t, "flat", run["policy"])
	entries := run["entries"].([]any)
	first := entries[0].(map[string]any)
	assert.Equal(t, "leaf", first["role"], "log entry fields are inlined")
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, FromRecord(sampleRecord()), Format("xml"), Options{})
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestWriteTree(t *testing.T) {
	root := &models.NodeSnapshot{
		Path: []int{}, Task: "q", Executed: true, State: models.NodeStateDone,
		Children: []*models.NodeSnapshot{
			{Path: []int{0}, Task: "a", Focus: "fa", Executed: true, State: models.NodeStateDone},
			{Path: []int{1}, State: models.NodeStatePending},
		},
	}

	var buf bytes.Buffer
	WriteTree(&buf, root)
	assert.Equal(t, "root q\n  0 a (fa)\n", buf.String())
}

func TestWriteRuns(t *testing.T) {
	runs := []models.RunRecord{*sampleRecord()}

	var buf bytes.Buffer
	require.NoError(t, WriteRuns(&buf, runs, FormatText))
	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "0123456789")
	assert.Contains(t, out, "2x2 flat")
	assert.Contains(t, out, "3/3")
}

func TestPathString(t *testing.T) {
	assert.Equal(t, "root", PathString(nil))
	assert.Equal(t, "0.2.1", PathString([]int{0, 2, 1}))
}
