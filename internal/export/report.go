package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/sawpanic/ruleforge/internal/domain/rules"
)

// PrintRules writes the top ranked raw rules as IF/THEN blocks
func PrintRules(w io.Writer, ranked []rules.Rule, topN int, targetName string, classification bool) {
	if len(ranked) == 0 {
		fmt.Fprintln(w, "No rules extracted.")
		return
	}
	if topN <= 0 || topN > len(ranked) {
		topN = len(ranked)
	}

	rule70 := strings.Repeat("=", 70)
	dash70 := strings.Repeat("-", 70)

	fmt.Fprintf(w, "\n%s\n[RULES] TOP %d TRADING RULES\n%s\n", rule70, topN, rule70)
	for i, r := range ranked[:topN] {
		fmt.Fprintf(w, "\n%s\nRule #%d (Importance Score: %.2f)\n%s\n", dash70, i+1, r.Importance, dash70)
		fmt.Fprintln(w, r.Text(targetName, classification))
	}
	fmt.Fprintf(w, "\n%s\n", rule70)
}

// PrintTraderRules writes trader rules as numbered signal blocks
func PrintTraderRules(w io.Writer, simplified []rules.SimplifiedRule, asset string) {
	rule80 := strings.Repeat("=", 80)
	dash80 := strings.Repeat("-", 80)

	fmt.Fprintf(w, "\n%s\n[TRADING SIGNALS] TOP %d ACTIONABLE TRADING RULES\n%s\n", rule80, len(simplified), rule80)
	for i, s := range simplified {
		fmt.Fprintf(w, "\n%s\nSignal #%d - %s %s\n%s\n", dash80, i+1, s.SignalText(), asset, dash80)
		fmt.Fprintln(w, s.Text(asset))
		fmt.Fprintf(w, "  Expected Profit: %+.4f per trade\n", s.Prediction)
		fmt.Fprintf(w, "  Coverage: %.1f%% of samples\n", s.Coverage*100)
		fmt.Fprintf(w, "  Confidence Score: %.2f\n", s.Importance)
	}
	fmt.Fprintf(w, "\n%s\n[INFO] These rules are ranked by confidence and filtered for clarity\n%s\n", rule80, rule80)
}
