package runner

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// Report writes the exception report for one pass. Both drivers feed the
// same formatter; an empty list means a clean pass.
func Report(w io.Writer, res *Result) {
	fmt.Fprintf(w, "%s pass  %s\n", res.Mode, dimStyle.Render(fmt.Sprintf("%.2fs", res.Duration.Seconds())))

	if len(res.Errors) == 0 {
		fmt.Fprintln(w, okStyle.Render("no exceptions during calculation"))
		return
	}

	fmt.Fprintln(w, failStyle.Render(fmt.Sprintf("%d exception(s):", len(res.Errors))))
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", e.Error())
	}
}

// Summary renders a one-line outcome per pass for the end of a run.
func Summary(results []*Result) string {
	var b strings.Builder
	for _, res := range results {
		status := okStyle.Render("ok")
		if len(res.Errors) > 0 {
			status = failStyle.Render(fmt.Sprintf("%d failed", len(res.Errors)))
		}
		fmt.Fprintf(&b, "%-8s %6.2fs  %s  -> %s\n", res.Mode, res.Duration.Seconds(), status, res.Output)
	}
	return b.String()
}
