// Package render writes run summaries and plans for humans (text tables) and machines (JSON,
// YAML, TOML).
package render

import (
	"encoding"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/ntzs/deployments/operations"
)

// Format is an output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Formats lists the supported formats.
var Formats = []Format{FormatText, FormatJSON, FormatYAML, FormatTOML}

// ParseFormat returns the Format named s. An empty string is FormatText.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatText, nil
	}
	for _, f := range Formats {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}

	return "", fmt.Errorf("unknown format %q, want one of %v", s, Formats)
}

// Document is the serialized form of a run summary. Values are rendered as strings so every
// format shows the same thing.
type Document struct {
	Run          RunInfo    `json:"run" yaml:"run" toml:"run"`
	Steps        []StepRow  `json:"steps" yaml:"steps" toml:"steps"`
	Verification []CheckRow `json:"verification,omitempty" yaml:"verification,omitempty" toml:"verification,omitempty"`
	Success      bool       `json:"success" yaml:"success" toml:"success"`
}

type RunInfo struct {
	ID     string   `json:"id" yaml:"id" toml:"id"`
	Plan   string   `json:"plan" yaml:"plan" toml:"plan"`
	State  string   `json:"state" yaml:"state" toml:"state"`
	NotRun []string `json:"notRun,omitempty" yaml:"notRun,omitempty" toml:"notRun,omitempty"`
	Error  string   `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
}

type StepRow struct {
	Step      string `json:"step" yaml:"step" toml:"step"`
	Version   string `json:"version" yaml:"version" toml:"version"`
	Required  bool   `json:"required" yaml:"required" toml:"required"`
	Status    string `json:"status" yaml:"status" toml:"status"`
	Value     string `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
	Handle    string `json:"handle,omitempty" yaml:"handle,omitempty" toml:"handle,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
	Attempts  uint   `json:"attempts" yaml:"attempts" toml:"attempts"`
	Timestamp string `json:"timestamp,omitempty" yaml:"timestamp,omitempty" toml:"timestamp,omitempty"`
}

type CheckRow struct {
	Property string `json:"property" yaml:"property" toml:"property"`
	Expected string `json:"expected" yaml:"expected" toml:"expected"`
	Actual   string `json:"actual" yaml:"actual" toml:"actual"`
	Match    bool   `json:"match" yaml:"match" toml:"match"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
}

// NewDocument converts a summary into a Document.
func NewDocument(s operations.Summary) Document {
	doc := Document{Success: s.Success()}

	if r := s.Run; r != nil {
		doc.Run = RunInfo{ID: r.ID, Plan: r.Plan, State: r.State.String(), NotRun: r.NotRun}
		if err := r.Err(); err != nil {
			doc.Run.Error = err.Error()
		}

		for _, res := range r.Results {
			row := StepRow{
				Step:     res.Def.ID,
				Required: res.Required,
				Status:   string(res.Status),
				Value:    FormatValue(res.Value),
				Handle:   res.HandleID,
				Attempts: res.Attempts,
			}
			if res.Def.Version != nil {
				row.Version = res.Def.Version.String()
			}
			if res.Err != nil {
				row.Error = res.Err.Message
			}
			if res.Timestamp != nil {
				row.Timestamp = res.Timestamp.UTC().Format(time.RFC3339)
			}
			doc.Steps = append(doc.Steps, row)
		}
	}

	if s.Verification != nil {
		for _, c := range s.Verification.Checks {
			doc.Verification = append(doc.Verification, CheckRow{
				Property: c.Property,
				Expected: FormatValue(c.Expected),
				Actual:   FormatValue(c.Actual),
				Match:    c.Match,
				Error:    c.Error,
			})
		}
	}

	return doc
}

// FormatValue renders a step value or property for display.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case encoding.TextMarshaler:
		if b, err := t.MarshalText(); err == nil {
			return string(b)
		}
	case bool, int, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t)
	}

	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}

	return fmt.Sprintf("%v", v)
}

// Summary writes s to w in format f.
func Summary(w io.Writer, f Format, s operations.Summary) error {
	doc := NewDocument(s)

	switch f {
	case FormatText, "":
		return writeText(w, doc)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}

		return enc.Close()
	case FormatTOML:
		return toml.NewEncoder(w).Encode(doc)
	default:
		return fmt.Errorf("unknown format %q", f)
	}
}

func writeText(w io.Writer, doc Document) error {
	status := "FAILED"
	if doc.Success {
		status = "OK"
	}
	if _, err := fmt.Fprintf(w, "Run %s of plan %s: %s (%s)\n", doc.Run.ID, doc.Run.Plan, doc.Run.State, status); err != nil {
		return err
	}
	if doc.Run.Error != "" {
		if _, err := fmt.Fprintf(w, "Error: %s\n", doc.Run.Error); err != nil {
			return err
		}
	}

	steps := tablewriter.NewWriter(w)
	steps.SetHeader([]string{"Step", "Required", "Status", "Value", "Tx", "Error"})
	steps.SetAutoWrapText(false)
	for _, s := range doc.Steps {
		steps.Append([]string{s.Step, strconv.FormatBool(s.Required), s.Status, s.Value, s.Handle, s.Error})
	}
	for _, id := range doc.Run.NotRun {
		steps.Append([]string{id, "", "not run", "", "", ""})
	}
	steps.Render()

	if len(doc.Verification) == 0 {
		return nil
	}

	if _, err := fmt.Fprintln(w, "Verification:"); err != nil {
		return err
	}
	checks := tablewriter.NewWriter(w)
	checks.SetHeader([]string{"Property", "Expected", "Actual", "Match"})
	checks.SetAutoWrapText(false)
	for _, c := range doc.Verification {
		actual := c.Actual
		if c.Error != "" {
			actual = "error: " + c.Error
		}
		match := "✓"
		if !c.Match {
			match = "✗"
		}
		checks.Append([]string{c.Property, c.Expected, actual, match})
	}
	checks.Render()

	return nil
}

// Plan writes the steps of plan as a table.
func Plan(w io.Writer, plan *operations.Plan) error {
	if _, err := fmt.Fprintf(w, "Plan %s (%d steps)\n", plan.Name(), plan.Len()); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Step", "Version", "Required", "Description"})
	table.SetAutoWrapText(false)
	for i, s := range plan.Steps() {
		version := ""
		if s.Def().Version != nil {
			version = s.Def().Version.String()
		}
		table.Append([]string{strconv.Itoa(i + 1), s.ID(), version, strconv.FormatBool(s.Required()), s.Def().Description})
	}
	table.Render()

	return nil
}
