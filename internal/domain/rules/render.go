package rules

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var endOfMinuteSuffix = regexp.MustCompile(`(?i) at end of minute`)

// DisplayFeature strips the " at End of Minute" decoration from a feature name
func DisplayFeature(feature string) string {
	return endOfMinuteSuffix.ReplaceAllString(feature, "")
}

// DisplayThreshold rounds a threshold to one decimal for display
func DisplayThreshold(threshold float64) string {
	return strconv.FormatFloat(threshold, 'f', 1, 64)
}

// DisplayOperator renders <= as < for trader-facing text
func DisplayOperator(d Direction) string {
	if d == DirLE {
		return "<"
	}
	return ">"
}

// ConditionText renders the IF clause body, e.g. "RSI > 30.0 AND Volume < 1.5"
func (s SimplifiedRule) ConditionText() string {
	parts := make([]string, 0, len(s.Conditions))
	for _, fb := range s.Conditions {
		parts = append(parts, fmt.Sprintf("%s %s %s",
			DisplayFeature(fb.Feature), DisplayOperator(fb.Direction), DisplayThreshold(fb.Threshold)))
	}
	return strings.Join(parts, " AND ")
}

// SignalText renders "<strength> <signal>"
func (s SimplifiedRule) SignalText() string {
	return fmt.Sprintf("%s %s", s.Strength, s.Signal)
}

// Text renders the rule as "IF ... THEN <strength> <signal> <asset>"
func (s SimplifiedRule) Text(asset string) string {
	return fmt.Sprintf("IF %s THEN %s %s", s.ConditionText(), s.SignalText(), asset)
}

// formatThreshold picks precision by magnitude so tiny splits stay readable
func formatThreshold(threshold float64) string {
	abs := math.Abs(threshold)
	switch {
	case abs < 0.01:
		return strconv.FormatFloat(threshold, 'f', 6, 64)
	case abs < 1:
		return strconv.FormatFloat(threshold, 'f', 4, 64)
	case abs < 100:
		return strconv.FormatFloat(threshold, 'f', 2, 64)
	default:
		return strconv.FormatFloat(threshold, 'f', 1, 64)
	}
}

// ConditionText renders the raw conjunction with magnitude-aware precision
func (r Rule) ConditionText() string {
	parts := make([]string, 0, len(r.Conditions))
	for _, c := range r.Conditions {
		parts = append(parts, fmt.Sprintf("%s %s %s", c.Feature, c.Operator, formatThreshold(c.Threshold)))
	}
	return strings.Join(parts, " AND ")
}

// Text renders the raw rule as a three-line IF/THEN block.
// Classification leaves are probabilities: above 0.5 reads as BUY.
func (r Rule) Text(targetName string, classification bool) string {
	if len(r.Conditions) == 0 {
		return "No conditions (root prediction)"
	}

	var then string
	if classification {
		signal, confidence := "SELL", 1-r.Prediction
		if r.Prediction > 0.5 {
			signal, confidence = "BUY", r.Prediction
		}
		then = fmt.Sprintf("THEN %s (Confidence: %.2f%%)", signal, confidence*100)
	} else {
		then = fmt.Sprintf("THEN Expected %s: %+.4f", targetName, r.Prediction)
	}

	meta := fmt.Sprintf("    [Coverage: %.1f%% | Importance: %.2f]", r.Coverage*100, r.Importance)
	return fmt.Sprintf("IF %s\n%s\n%s", r.ConditionText(), then, meta)
}
