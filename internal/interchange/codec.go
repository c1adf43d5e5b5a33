package interchange

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/prepdeck/internal/domain"
	"github.com/conorfennell/prepdeck/internal/parser"
	"go.yaml.in/yaml/v3"
)

// Format names an interchange format.
type Format string

const (
	CSV      Format = "csv"
	YAML     Format = "yaml"
	Markdown Format = "md"
)

// ErrUnknownFormat is returned for format names and file extensions that are
// not supported.
var ErrUnknownFormat = errors.New("interchange: unknown format")

// ParseFormat accepts csv, yaml/yml and md/markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return CSV, nil
	case "yaml", "yml":
		return YAML, nil
	case "md", "markdown":
		return Markdown, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatFromPath picks a format from a file extension.
func FormatFromPath(path string) (Format, bool) {
	f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	return f, err == nil
}

// Decode reads every record in r. Records that fail validation are returned
// in rejected (as *RecordError) and do not stop decoding. err is set only when
// the input as a whole cannot be read.
func Decode(r io.Reader, f Format) (records []Record, rejected []error, err error) {
	var rows []indexedFields
	switch f {
	case CSV:
		rows, err = readCSV(r)
	case YAML:
		rows, err = readYAML(r)
	case Markdown:
		rows, err = readMarkdown(r)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	if err != nil {
		return nil, nil, err
	}

	for _, row := range rows {
		rec, err := FromFields(row.index, row.fields)
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		records = append(records, rec)
	}
	return records, rejected, nil
}

// Encode writes recs in format f. Markdown carries entry content only.
func Encode(w io.Writer, f Format, recs []domain.Record) error {
	switch f {
	case CSV:
		return writeCSV(w, recs)
	case YAML:
		return writeYAML(w, recs)
	case Markdown:
		return writeMarkdown(w, recs)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

type indexedFields struct {
	index  int
	fields map[string]string
}

func readCSV(r io.Reader) ([]indexedFields, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var rows []indexedFields
	for index := 1; ; index++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		fields := make(map[string]string, len(header))
		for i, v := range row {
			if i < len(header) && header[i] != "" {
				fields[header[i]] = v
			}
		}
		rows = append(rows, indexedFields{index: index, fields: fields})
	}
	return rows, nil
}

func writeCSV(w io.Writer, recs []domain.Record) error {
	cw := csv.NewWriter(w)
	columns := append(append([]string{}, EntryColumns...), ReviewColumns...)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range recs {
		fields := Fields(rec)
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = fields[col]
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", rec.Entry.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func readYAML(r io.Reader) ([]indexedFields, error) {
	var items []map[string]any
	if err := yaml.NewDecoder(r).Decode(&items); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read yaml: %w", err)
	}

	rows := make([]indexedFields, 0, len(items))
	for i, item := range items {
		fields := make(map[string]string, len(item))
		for k, v := range item {
			fields[strings.ToLower(strings.TrimSpace(k))] = stringify(v)
		}
		rows = append(rows, indexedFields{index: i + 1, fields: fields})
	}
	return rows, nil
}

// stringify flattens a decoded YAML scalar or list into the text form used by
// FromFields.
func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, ";")
	}
	return fmt.Sprint(v)
}

type yamlRecord struct {
	ID           string   `yaml:"id"`
	Category     string   `yaml:"category"`
	Prompt       string   `yaml:"prompt"`
	Answer       string   `yaml:"answer"`
	Tags         []string `yaml:"tags,flow,omitempty"`
	Difficulty   int      `yaml:"difficulty"`
	Source       string   `yaml:"source,omitempty"`
	CreatedAt    string   `yaml:"created_at,omitempty"`
	LastReviewed string   `yaml:"last_reviewed,omitempty"`
	NextDue      string   `yaml:"next_due"`
	Interval     float64  `yaml:"interval"`
	Streak       int      `yaml:"streak"`
	Ease         float64  `yaml:"ease"`
	Reviews      int      `yaml:"reviews"`
}

func writeYAML(w io.Writer, recs []domain.Record) error {
	out := make([]yamlRecord, 0, len(recs))
	for _, rec := range recs {
		e, rs := rec.Entry, rec.Review
		out = append(out, yamlRecord{
			ID:           e.ID,
			Category:     e.Category,
			Prompt:       e.Prompt,
			Answer:       e.Answer,
			Tags:         e.Tags,
			Difficulty:   e.Difficulty,
			Source:       e.Source,
			CreatedAt:    formatTime(e.CreatedAt),
			LastReviewed: formatTime(rs.LastReviewed),
			NextDue:      formatTime(rs.NextDue),
			Interval:     rs.Interval,
			Streak:       rs.Streak,
			Ease:         rs.Ease,
			Reviews:      rs.Reviews,
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write yaml: %w", err)
	}
	return enc.Close()
}

func readMarkdown(r io.Reader) ([]indexedFields, error) {
	blocks, err := parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}
	rows := make([]indexedFields, 0, len(blocks))
	for _, b := range blocks {
		rows = append(rows, indexedFields{index: b.Line, fields: b.Fields})
	}
	return rows, nil
}

func writeMarkdown(w io.Writer, recs []domain.Record) error {
	var b strings.Builder
	for i, rec := range recs {
		e := rec.Entry
		if i > 0 {
			b.WriteString("---\n")
		}
		fmt.Fprintf(&b, "ID: %s\n", e.ID)
		fmt.Fprintf(&b, "Category: %s\n", e.Category)
		fmt.Fprintf(&b, "Difficulty: %d\n", e.Difficulty)
		if len(e.Tags) > 0 {
			fmt.Fprintf(&b, "Tags: %s\n", strings.Join(e.Tags, ", "))
		}
		if e.Source != "" {
			fmt.Fprintf(&b, "Source: %s\n", e.Source)
		}
		fmt.Fprintf(&b, "Q: %s\n", e.Prompt)
		fmt.Fprintf(&b, "A: %s\n", e.Answer)
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	return nil
}
