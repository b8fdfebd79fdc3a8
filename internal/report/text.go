package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/boundary-compare/internal/boundary"
)

const ruleWidth = 80

// RenderText formats the summary as the fixed-structure comparison report.
func RenderText(s *Summary) string {
	var b strings.Builder
	rule := strings.Repeat("=", ruleWidth)

	b.WriteString(rule + "\n")
	b.WriteString("SWISS MUNICIPALITY BOUNDARY COMPARISON REPORT\n")
	fmt.Fprintf(&b, "Generated: %s\n", s.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	if s.RunID != "" {
		fmt.Fprintf(&b, "Run ID: %s\n", s.RunID)
	}
	b.WriteString(rule + "\n")

	b.WriteString("\nDataset Overview:\n")
	fmt.Fprintf(&b, "  Authoritative municipalities: %d\n", s.AuthoritativeCount)
	fmt.Fprintf(&b, "  Crowd-sourced municipalities: %d\n", s.CrowdCount)
	fmt.Fprintf(&b, "  Matched: %d (%s)\n", s.Matched, pct(s.Matched, s.AuthoritativeCount))
	fmt.Fprintf(&b, "  Scored: %d\n", s.Scored)
	fmt.Fprintf(&b, "  Unscored: %d\n", len(s.Unscored))
	fmt.Fprintf(&b, "  Missing in crowd-sourced: %d (%s)\n", len(s.MissingInCrowd), pct(len(s.MissingInCrowd), s.AuthoritativeCount))
	fmt.Fprintf(&b, "  Missing in authoritative: %d\n", len(s.MissingInAuth))
	fmt.Fprintf(&b, "  Dropped records: %d authoritative, %d crowd-sourced\n", s.AuthoritativeDrops, s.CrowdDrops)
	fmt.Fprintf(&b, "  Duplicate identifiers: %d\n", len(s.Duplicates))

	b.WriteString("\nAccuracy Metrics (scored municipalities):\n")
	if s.Scored == 0 {
		b.WriteString("  No municipalities scored.\n")
	} else {
		fmt.Fprintf(&b, "  Mean IoU: %.4f\n", s.MeanIoU)
		fmt.Fprintf(&b, "  Median IoU: %.4f\n", s.MedianIoU)
		fmt.Fprintf(&b, "  Mean area difference: %+.2f%%\n", s.MeanAreaDiffPct)
		fmt.Fprintf(&b, "  Mean symmetric difference: %.0f m²\n", s.MeanSymDiffArea)
		fmt.Fprintf(&b, "  Mean Hausdorff distance: %.1f m\n", s.MeanHausdorff)
		fmt.Fprintf(&b, "  Max Hausdorff distance: %.1f m\n", s.MaxHausdorff)
		fmt.Fprintf(&b, "  Total authoritative area: %.3f km²\n", s.TotalAuthArea/1e6)
		fmt.Fprintf(&b, "  Total crowd-sourced area: %.3f km²\n", s.TotalCrowdArea/1e6)
		fmt.Fprintf(&b, "  Total area deviation: %+.3f%%\n", s.TotalAreaDeviation)
	}

	b.WriteString("\nQuality Distribution:\n")
	for i, cc := range s.Categories {
		bound := fmt.Sprintf("IoU >= %.2f", cc.Lower)
		if i == len(s.Categories)-1 && i > 0 {
			bound = fmt.Sprintf("IoU < %.2f", s.Categories[i-1].Lower)
		}
		fmt.Fprintf(&b, "  %-9s (%s): %d (%.1f%%)\n", cc.Category, bound, cc.Count, cc.Pct)
	}

	fmt.Fprintf(&b, "\nWorst %d Matches (by IoU):\n", s.WorstN)
	if len(s.Worst) == 0 {
		b.WriteString("  None.\n")
	} else {
		fmt.Fprintf(&b, "  %-6s %-32s %8s %10s %12s %-9s\n", "BFS", "Name", "IoU", "Area diff", "Hausdorff", "Category")
		b.WriteString("  " + strings.Repeat("-", ruleWidth-2) + "\n")
		for _, r := range s.Worst {
			fmt.Fprintf(&b, "  %-6d %-32s %8.4f %9.2f%% %10.1f m %-9s\n",
				r.ID, truncate(r.Name, 32), r.IoU, r.AreaDifferencePct, r.HausdorffDistance, r.Category)
		}
	}

	if len(s.Unscored) > 0 {
		b.WriteString("\nUnscored Matches:\n")
		for _, u := range s.Unscored {
			fmt.Fprintf(&b, "  %-6d %s: %s\n", u.ID, u.Name, u.Reason)
		}
	}

	writeRefs(&b, "Missing in Crowd-sourced", s.MissingInCrowd, s.MissingLimit)
	writeRefs(&b, "Missing in Authoritative", s.MissingInAuth, s.MissingLimit)

	if len(s.Duplicates) > 0 {
		b.WriteString("\nDuplicate Identifiers (first record kept):\n")
		for _, d := range s.Duplicates {
			fmt.Fprintf(&b, "  %-6d %s x%d\n", d.ID, d.Side, d.Count)
		}
	}

	if len(s.NameDifferences) > 0 {
		b.WriteString("\nName Differences:\n")
		for _, n := range s.NameDifferences {
			fmt.Fprintf(&b, "  %-6d %s | %s\n", n.ID, n.AuthoritativeName, n.CrowdName)
		}
	}

	return b.String()
}

func writeRefs(b *strings.Builder, title string, refs []boundary.Ref, limit int) {
	if len(refs) == 0 {
		return
	}
	shown := refs
	if limit > 0 && len(refs) > limit {
		shown = refs[:limit]
		fmt.Fprintf(b, "\n%s (showing first %d of %d):\n", title, limit, len(refs))
	} else {
		fmt.Fprintf(b, "\n%s:\n", title)
	}
	for _, r := range shown {
		fmt.Fprintf(b, "  %-6d %s\n", r.ID, r.Name)
	}
}

func pct(n, total int) string {
	if total == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// WriteText renders the summary and writes it to path, creating parent
// directories as needed.
func WriteText(path string, s *Summary) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(RenderText(s)), 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "report: create directory %s", dir)
	}
	return nil
}
