// Package report renders evaluation reports for people: plain text for
// copying and a styled terminal view.
package report

import (
	"fmt"
	"strings"

	"github.com/liamcoop/storecheck/rules"
)

// LockedHint is shown in place of a verdict for locked rules
const LockedHint = "Unlock full access via one-time purchase"

// Label returns the bracketed tag for a result, e.g. "[PASS]" or "[LOCKED]"
func Label(r rules.Result) string {
	if r.Locked {
		return "[LOCKED]"
	}
	return "[" + strings.ToUpper(string(r.Severity)) + "]"
}

// Summary returns the one-line count summary
func Summary(c rules.Counts) string {
	return fmt.Sprintf("pass=%d warning=%d fail=%d locked=%d", c.Pass, c.Warning, c.Fail, c.Locked)
}

// Text renders one line per result followed by the summary line
func Text(rep rules.Report) string {
	var sb strings.Builder
	for _, r := range rep.Results {
		msg := r.Message
		if r.Locked {
			msg = LockedHint
		}
		fmt.Fprintf(&sb, "%s %s: %s\n", Label(r), r.Name, msg)
	}
	sb.WriteString(Summary(rep.Counts))
	sb.WriteString("\n")
	return sb.String()
}
