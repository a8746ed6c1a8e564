package coa

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadFile reads a chart-of-accounts snapshot from a JSON file and returns a
// directory over it. The file is an array of account records as exported by
// the chart-of-accounts service.
func LoadFile(path string) (*StaticDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading chart of accounts: %w", err)
	}

	var accounts []*AccountRecord
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("parsing chart of accounts %s: %w", path, err)
	}
	for i, a := range accounts {
		if a.ID == "" || a.Code == "" {
			return nil, fmt.Errorf("chart of accounts %s: record %d missing id or code", path, i)
		}
	}
	return NewStaticDirectory(accounts), nil
}
