package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/ruleforge/internal/domain/rules"
)

// RuleRecord is the tabular form of one ranked raw rule
type RuleRecord struct {
	RuleID        int     `json:"Rule_ID"`
	Conditions    string  `json:"Conditions"`
	Prediction    float64 `json:"Prediction"`
	CoveragePct   float64 `json:"Coverage_%"`
	Importance    float64 `json:"Importance"`
	NumConditions int     `json:"Num_Conditions"`
	TreeID        int     `json:"Tree_ID"`
}

// TraderRecord is the tabular form of one trader rule
type TraderRecord struct {
	Rule           int             `json:"Rule"`
	Condition      string          `json:"Condition"`
	Signal         string          `json:"Signal"`
	Asset          string          `json:"Asset"`
	ExpectedProfit decimal.Decimal `json:"-"`
	CoveragePct    decimal.Decimal `json:"-"`
	Confidence     decimal.Decimal `json:"-"`
}

// Rounding applied to trader record values
const (
	ExpectedProfitPlaces = 4
	CoveragePlaces       = 1
	ConfidencePlaces     = 2
)

// RuleRecords numbers rules from 1 in their ranked order
func RuleRecords(ranked []rules.Rule) []RuleRecord {
	out := make([]RuleRecord, len(ranked))
	for i, r := range ranked {
		conds := make([]string, len(r.Conditions))
		for j, c := range r.Conditions {
			conds[j] = fmt.Sprintf("%s %s %.4f", c.Feature, c.Operator, c.Threshold)
		}
		out[i] = RuleRecord{
			RuleID:        i + 1,
			Conditions:    strings.Join(conds, " AND "),
			Prediction:    r.Prediction,
			CoveragePct:   r.Coverage * 100,
			Importance:    r.Importance,
			NumConditions: len(r.Conditions),
			TreeID:        r.TreeID,
		}
	}
	return out
}

// TraderRecords numbers trader rules from 1 and rounds their figures half to
// even on the exact binary value, so 5.125 rounds to 5.12 and a coverage of
// 0.2345 becomes 23.4 (0.2345*100 is stored just below 23.45)
func TraderRecords(simplified []rules.SimplifiedRule, asset string) []TraderRecord {
	out := make([]TraderRecord, len(simplified))
	for i, s := range simplified {
		out[i] = TraderRecord{
			Rule:           i + 1,
			Condition:      s.ConditionText(),
			Signal:         s.SignalText(),
			Asset:          asset,
			ExpectedProfit: roundHalfEven(s.Prediction, ExpectedProfitPlaces),
			CoveragePct:    roundHalfEven(s.Coverage*100, CoveragePlaces),
			Confidence:     roundHalfEven(s.Importance, ConfidencePlaces),
		}
	}
	return out
}

// roundHalfEven rounds the exact binary value of f; non-finite values become zero
func roundHalfEven(f float64, places int32) decimal.Decimal {
	d, err := decimal.NewFromString(strconv.FormatFloat(f, 'f', 1074, 64))
	if err != nil {
		return decimal.Zero
	}
	return d.RoundBank(places)
}

// traderJSON is the wire form of TraderRecord with numeric fields
type traderJSON struct {
	Rule           int     `json:"Rule"`
	Condition      string  `json:"Condition"`
	Signal         string  `json:"Signal"`
	Asset          string  `json:"Asset"`
	ExpectedProfit float64 `json:"Expected_Profit"`
	CoveragePct    float64 `json:"Coverage_%"`
	Confidence     float64 `json:"Confidence"`
}

func (r TraderRecord) wire() traderJSON {
	return traderJSON{
		Rule:           r.Rule,
		Condition:      r.Condition,
		Signal:         r.Signal,
		Asset:          r.Asset,
		ExpectedProfit: r.ExpectedProfit.InexactFloat64(),
		CoveragePct:    r.CoveragePct.InexactFloat64(),
		Confidence:     r.Confidence.InexactFloat64(),
	}
}

// MarshalJSON emits the rounded figures as JSON numbers
func (r TraderRecord) MarshalJSON() ([]byte, error) {
	return marshal(r.wire())
}
