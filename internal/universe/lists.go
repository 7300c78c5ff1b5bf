package universe

import (
	"embed"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/wonny/dragon/internal/contracts"
)

//go:embed data/sp500.csv data/nasdaq100.csv
var listFS embed.FS

// listFiles maps each index source to its bundled constituent list
var listFiles = map[contracts.IndexSource]string{
	contracts.IndexSP500:     "data/sp500.csv",
	contracts.IndexNasdaq100: "data/nasdaq100.csv",
}

// Constituent is one (symbol, name) entry of a bundled index list
type Constituent struct {
	Symbol string
	Name   string
}

// LoadConstituents parses the bundled list for an index source.
// 포맷: 헤더 1줄 + "symbol,name" 행들.
func LoadConstituents(source contracts.IndexSource) ([]Constituent, error) {
	path, ok := listFiles[source]
	if !ok {
		return nil, fmt.Errorf("no bundled list for index %s", source)
	}

	f, err := listFS.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundled list %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 2

	// Skip header
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}

	var out []Constituent
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		symbol := strings.ToUpper(strings.TrimSpace(record[0]))
		name := strings.TrimSpace(record[1])
		if symbol == "" {
			continue
		}
		out = append(out, Constituent{Symbol: symbol, Name: name})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("bundled list %s is empty", path)
	}
	return out, nil
}
