package loader

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/DeafMist/tweet-triage/backend/internal/dedupe"
)

// Column names expected in the input header (matched case-insensitively).
const (
	ColumnText        = "text"
	ColumnCreateDate  = "CreateDate"
	ColumnAntisemitic = "Antisemitic"
)

// Row is one raw input record before preparation.
type Row struct {
	Text        string
	CreateDate  string
	Antisemitic bool
}

// LoadRowsFile reads all rows from a CSV file.
func LoadRowsFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rows: %w", err)
	}
	defer f.Close()

	rows, err := LoadRows(f)
	if err != nil {
		return nil, fmt.Errorf("load rows %s: %w", path, err)
	}
	return rows, nil
}

// LoadRows reads a CSV table with a header containing text, CreateDate and Antisemitic.
// Extra columns are ignored.
func LoadRows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty input")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}

	textIdx, ok := cols[strings.ToLower(ColumnText)]
	if !ok {
		return nil, fmt.Errorf("missing column %q", ColumnText)
	}
	dateIdx, ok := cols[strings.ToLower(ColumnCreateDate)]
	if !ok {
		return nil, fmt.Errorf("missing column %q", ColumnCreateDate)
	}
	labelIdx, ok := cols[strings.ToLower(ColumnAntisemitic)]
	if !ok {
		return nil, fmt.Errorf("missing column %q", ColumnAntisemitic)
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}

		rows = append(rows, Row{
			Text:        field(record, textIdx),
			CreateDate:  field(record, dateIdx),
			Antisemitic: ParseBool(field(record, labelIdx)),
		})
	}

	return rows, nil
}

// ParseBool interprets boolean-like cells: true/false, yes/no, t/f, y/n and numbers.
// Empty and unrecognised values are false.
func ParseBool(raw string) bool {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "true", "t", "yes", "y":
		return true
	case "", "false", "f", "no", "n":
		return false
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f != 0
	}
	return false
}

// LoadVocabularyFile reads a newline-delimited keyword list.
func LoadVocabularyFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()

	vocab, err := LoadVocabulary(f)
	if err != nil {
		return nil, fmt.Errorf("load vocabulary %s: %w", path, err)
	}
	return vocab, nil
}

// LoadVocabulary returns one keyword per non-blank line, trimmed, without repeats.
func LoadVocabulary(r io.Reader) ([]string, error) {
	set := dedupe.NewSet(64)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		term := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if term == "" {
			continue
		}
		set.Add(term)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan vocabulary: %w", err)
	}
	return set.Values(), nil
}

func field(record []string, idx int) string {
	if idx < len(record) {
		return record[idx]
	}
	return ""
}
