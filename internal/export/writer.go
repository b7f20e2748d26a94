package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/ruleforge/internal/domain/rules"
)

// Format selects the file encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// FormatFromPath picks the format from the file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (want .json or .csv)", filepath.Ext(path))
	}
}

var ruleHeader = []string{"Rule_ID", "Conditions", "Prediction", "Coverage_%", "Importance", "Num_Conditions", "Tree_ID"}

var traderHeader = []string{"Rule", "Condition", "Signal", "Asset", "Expected_Profit", "Coverage_%", "Confidence"}

// WriteRules exports ranked raw rules; JSON keeps the rule objects, CSV the record rows
func WriteRules(path string, ranked []rules.Rule) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	var data []byte
	switch format {
	case FormatJSON:
		data, err = marshalIndent(ranked)
	case FormatCSV:
		records := RuleRecords(ranked)
		rows := make([][]string, len(records))
		for i, r := range records {
			rows[i] = []string{
				strconv.Itoa(r.RuleID),
				r.Conditions,
				strconv.FormatFloat(r.Prediction, 'g', -1, 64),
				strconv.FormatFloat(r.CoveragePct, 'g', -1, 64),
				strconv.FormatFloat(r.Importance, 'g', -1, 64),
				strconv.Itoa(r.NumConditions),
				strconv.Itoa(r.TreeID),
			}
		}
		data, err = encodeCSV(ruleHeader, rows)
	}
	if err != nil {
		return err
	}

	if err := writeAtomic(path, data); err != nil {
		return err
	}
	log.Info().Str("path", path).Int("rules", len(ranked)).Msg("Exported rules")
	return nil
}

// WriteTraderRules exports trader rules as records
func WriteTraderRules(path string, simplified []rules.SimplifiedRule, asset string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	records := TraderRecords(simplified, asset)

	var data []byte
	switch format {
	case FormatJSON:
		data, err = marshalIndent(records)
	case FormatCSV:
		rows := make([][]string, len(records))
		for i, r := range records {
			rows[i] = []string{
				strconv.Itoa(r.Rule),
				r.Condition,
				r.Signal,
				r.Asset,
				r.ExpectedProfit.StringFixed(ExpectedProfitPlaces),
				r.CoveragePct.StringFixed(CoveragePlaces),
				r.Confidence.StringFixed(ConfidencePlaces),
			}
		}
		data, err = encodeCSV(traderHeader, rows)
	}
	if err != nil {
		return err
	}

	if err := writeAtomic(path, data); err != nil {
		return err
	}
	log.Info().Str("path", path).Int("trader_rules", len(records)).Msg("Exported trader rules")
	return nil
}

func marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return data, nil
}

func marshalIndent(v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return append(data, '\n'), nil
}

func encodeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write CSV rows: %w", err)
	}
	return buf.Bytes(), nil
}

// writeAtomic writes via temp file + rename so readers never see a partial file
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
