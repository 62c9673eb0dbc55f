package rules

import "fmt"

// Evaluate runs every rule in the catalogue against text.
//
// Premium rules are not executed while unlocked is false; they produce a
// locked result instead. The output has one result per rule in catalogue
// order, and neither text nor catalogue is modified.
func Evaluate(text string, unlocked bool, catalogue Catalogue) Report {
	report := Report{
		Results: make([]Result, 0, len(catalogue)),
	}

	for _, rule := range catalogue {
		if rule.Premium && !unlocked {
			report.Results = append(report.Results, Result{
				RuleID:  rule.ID,
				Name:    rule.Name,
				Premium: true,
				Locked:  true,
			})
			report.Counts.Locked++
			continue
		}

		verdict := runCheck(rule, text)
		report.Results = append(report.Results, Result{
			RuleID:   rule.ID,
			Name:     rule.Name,
			Premium:  rule.Premium,
			Severity: verdict.Severity,
			Message:  verdict.Message,
		})

		switch verdict.Severity {
		case SeverityPass:
			report.Counts.Pass++
		case SeverityFail:
			report.Counts.Fail++
		default:
			report.Counts.Warning++
		}
	}

	return report
}

// runCheck executes a single check. A panicking or malformed check becomes a
// warning so the rest of the catalogue is still evaluated.
func runCheck(rule Rule, text string) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			v = Verdict{
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Check could not be completed: %v", r),
			}
		}
	}()

	if rule.Check == nil {
		return Verdict{Severity: SeverityWarning, Message: "Check is not available"}
	}

	v = rule.Check(text)
	if _, err := ParseSeverity(string(v.Severity)); err != nil {
		return Verdict{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Check returned an invalid result: %v", err),
		}
	}
	return v
}
