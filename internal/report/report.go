// Package report renders finished runs as text, JSON or YAML.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/fractal/internal/engine"
	"github.com/ShayCichocki/fractal/pkg/models"
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown output format")

// ParseFormat converts a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// RunAnswer is the answer of one independent run.
type RunAnswer struct {
	Index  int    `json:"index" yaml:"index"`
	Answer string `json:"answer" yaml:"answer"`
}

// Report is the printable view of a run.
type Report struct {
	Run *models.RunRecord `json:"run" yaml:"run"`
	// Answers holds the per-run answers of a quantum query.
	Answers []RunAnswer          `json:"quantum_answers,omitempty" yaml:"quantum_answers,omitempty"`
	Tree    *models.NodeSnapshot `json:"tree,omitempty" yaml:"tree,omitempty"`
}

// FromResult builds a report from a live result. The tree of the first run
// is included when withTree is set.
func FromResult(res *engine.Result, withTree bool) *Report {
	r := &Report{Run: res.Record()}
	if len(res.Runs) > 1 {
		for _, run := range res.Runs {
			r.Answers = append(r.Answers, RunAnswer{Index: run.Index, Answer: run.Answer})
		}
	}
	if withTree && res.Tree != nil {
		r.Tree = res.Tree.Snapshot()
	}
	return r
}

// FromRecord builds a report from a stored run.
func FromRecord(rec *models.RunRecord) *Report {
	return &Report{Run: rec}
}

// Options tunes text output.
type Options struct {
	// Verbose prints the execution log.
	Verbose bool
}

// Write encodes the report to w.
func Write(w io.Writer, r *Report, format Format, opts Options) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		return writeText(w, r, opts)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	dimColor    = color.New(color.Faint)
)

func writeText(w io.Writer, r *Report, opts Options) error {
	rec := r.Run
	var b strings.Builder

	headerColor.Fprintf(&b, "Run %s\n", rec.ID)
	fmt.Fprintf(&b, "Query:   %s\n", rec.Query)
	fmt.Fprintf(&b, "Goal:    %s\n", rec.Goal)
	fmt.Fprintf(&b, "Tree:    depth %d, width %d, %s\n", rec.Depth, rec.Width, rec.Policy)
	fmt.Fprintf(&b, "Agents:  %d of %d executed\n", rec.ExecutedAgents, rec.TotalPossibleAgents)
	if rec.QuantumRuns > 1 {
		fmt.Fprintf(&b, "Runs:    %d\n", rec.QuantumRuns)
	}
	if !rec.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "Elapsed: %s\n", rec.CompletedAt.Sub(rec.StartedAt).Round(time.Millisecond))
	}

	if r.Tree != nil {
		b.WriteString("\n")
		headerColor.Fprintln(&b, "Delegation tree")
		WriteTree(&b, r.Tree)
	}

	if opts.Verbose && len(rec.Entries) > 0 {
		b.WriteString("\n")
		headerColor.Fprintln(&b, "Execution log")
		writeEntries(&b, rec.Entries, rec.QuantumRuns > 1)
	}

	for _, a := range r.Answers {
		b.WriteString("\n")
		headerColor.Fprintf(&b, "Run %d answer\n", a.Index+1)
		b.WriteString(a.Answer)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	headerColor.Fprintln(&b, "Final answer")
	b.WriteString(rec.FinalAnswer)
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func writeEntries(b *strings.Builder, entries []models.RunEntry, showRun bool) {
	for _, e := range entries {
		indent := strings.Repeat("  ", e.Layer)
		label := fmt.Sprintf("[%s %s]", e.Role, PathString(e.Path))
		if showRun {
			label = fmt.Sprintf("[run %d %s %s]", e.Run+1, e.Role, PathString(e.Path))
		}
		fmt.Fprintf(b, "%s%s %s\n", indent, dimColor.Sprint(label), firstLine(e.Task))
		fmt.Fprintf(b, "%s  -> %s\n", indent, firstLine(e.Response))
	}
}

// WriteTree writes an indented outline of the executed part of a tree.
func WriteTree(w io.Writer, n *models.NodeSnapshot) {
	writeNode(w, n, "")
}

func writeNode(w io.Writer, n *models.NodeSnapshot, indent string) {
	if !n.Executed && n.State == models.NodeStatePending {
		return
	}
	task := firstLine(n.Task)
	if n.Focus != "" {
		task = fmt.Sprintf("%s (%s)", task, n.Focus)
	}
	fmt.Fprintf(w, "%s%s %s\n", indent, PathString(n.Path), task)
	for _, c := range n.Children {
		writeNode(w, c, indent+"  ")
	}
}

// PathString renders a node path as "root" or "0.2.1".
func PathString(path []int) string {
	if len(path) == 0 {
		return "root"
	}
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ".")
}

// WriteRuns writes a history table, newest first as given.
func WriteRuns(w io.Writer, runs []models.RunRecord, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	case FormatYAML:
		return yaml.NewEncoder(w).Encode(runs)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSHAPE\tAGENTS\tQUERY")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n",
			ShortID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%dx%d %s", r.Depth, r.Width, r.Policy),
			r.ExecutedAgents, r.TotalPossibleAgents,
			clip(firstLine(r.Query), 60),
		)
	}
	return tw.Flush()
}

// ShortID returns the first eight characters of an ID.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
