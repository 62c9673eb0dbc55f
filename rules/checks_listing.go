package rules

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	earlyAccessTimeline  = regexp.MustCompile(`(?i)\d+\s*(?:month|week|year)s?|\b(?:roadmap|planned|timeline)\b`)
	earlyAccessPricing   = regexp.MustCompile(`(?i)\bpric(?:e|es|ing)\b|[$€£][\d,.]+`)
	earlyAccessCommunity = regexp.MustCompile(`(?i)\b(?:feedback|community|discord|suggestions?)\b`)

	bulletLine     = regexp.MustCompile(`(?m)^\s*[-•]\s*.+`)
	featureWord    = regexp.MustCompile(`(?i)\bfeatures?\b`)
	gameplayWord   = regexp.MustCompile(`(?i)\b(?:play|gameplay|experience)`)
	currencyAmount = regexp.MustCompile(`[$€£][\d,.]+`)
	freeToPlay     = regexp.MustCompile(`(?i)\bfree[\s-]to[\s-]play\b|\bf2p\b`)
	payToWin       = regexp.MustCompile(`(?i)\bpay[\s-]to[\s-]win\b`)
	freeWord       = regexp.MustCompile(`(?i)\bfree\b`)
)

var (
	earlyAccessPhrases   = []string{"early access", "in development", "work in progress"}
	currentStatePhrases  = []string{"current state", "currently", "current version", "current build", "at the moment"}
	plannedFeaturePhrase = []string{"planned feature", "upcoming feature", "future update", "coming soon", "will be added"}

	microtransactionWords = newKeywordSet("microtransaction", "in-app purchase", "in-game purchase", "cosmetic", "battle pass", "loot box", "premium currency")
	dlcWords              = newKeywordSet("dlc", "downloadable content", "expansion", "season pass")
	subscriptionWords     = newKeywordSet("subscription", "monthly fee", "membership")
)

// earlyAccessDisclosures names the five signals in scoring order
var earlyAccessDisclosures = []string{
	"development timeline",
	"current state",
	"planned features",
	"pricing plans",
	"community feedback",
}

// CheckEarlyAccess scores an Early Access listing on the disclosures Steam
// expects: timeline, current state, planned features, pricing and feedback.
func CheckEarlyAccess(text string) Verdict {
	lower := strings.ToLower(text)
	if !containsAny(lower, earlyAccessPhrases...) {
		return pass("No Early Access indicators found")
	}

	signals := []bool{
		earlyAccessTimeline.MatchString(text),
		containsAny(lower, currentStatePhrases...),
		containsAny(lower, plannedFeaturePhrase...),
		earlyAccessPricing.MatchString(text),
		earlyAccessCommunity.MatchString(text),
	}

	score := 0
	var missing []string
	for i, ok := range signals {
		if ok {
			score++
		} else {
			missing = append(missing, earlyAccessDisclosures[i])
		}
	}

	expected := "Early Access listings should disclose " + strings.Join(earlyAccessDisclosures, ", ")
	switch {
	case score >= 4:
		return pass(fmt.Sprintf("Early Access disclosure looks complete (%d/5)", score))
	case score >= 2:
		return warning(fmt.Sprintf("Early Access disclosure is partial (%d/5). %s; missing: %s",
			score, expected, strings.Join(missing, ", ")))
	default:
		return fail(fmt.Sprintf("Early Access listing lacks required disclosures (%d/5). %s",
			score, expected))
	}
}

// CheckDescriptionQuality grades description length and whether it explains
// features and gameplay.
func CheckDescriptionQuality(text string) Verdict {
	words := len(strings.Fields(text))

	switch {
	case words < 50:
		return fail(fmt.Sprintf("Description is too short (%d words). Aim for at least 150 words", words))
	case words < 100:
		return warning(fmt.Sprintf("Description is short (%d words). Consider expanding to 150+ words", words))
	case words < 150:
		return warning(fmt.Sprintf("Description could be more detailed (%d words)", words))
	}

	hasFeatures := featureWord.MatchString(text) || bulletLine.MatchString(text)
	hasGameplay := gameplayWord.MatchString(text)
	if !hasFeatures && !hasGameplay {
		return warning(fmt.Sprintf("Description length is fine (%d words) but does not describe features or gameplay", words))
	}
	return pass(fmt.Sprintf("Description length is good (%d words)", words))
}

// CheckPricingTransparency looks for clear pricing and disclosure of any
// extra purchases.
func CheckPricingTransparency(text string) Verdict {
	f2p := freeToPlay.MatchString(text)
	hasPrice := currencyAmount.MatchString(text)
	hasMicro := microtransactionWords.Any(text)

	switch {
	case f2p && hasMicro:
		return pass("Free-to-play model with in-game purchases disclosed")
	case f2p:
		return warning("Free-to-play listing should disclose any in-game purchases")
	case payToWin.MatchString(text) || (freeWord.MatchString(text) && hasPrice):
		return warning("Pricing language may be confusing: mentions both free and paid terms")
	case hasPrice:
		var extras []string
		if dlcWords.Any(text) {
			extras = append(extras, "DLC")
		}
		if hasMicro {
			extras = append(extras, "microtransactions")
		}
		if subscriptionWords.Any(text) {
			extras = append(extras, "subscription")
		}
		msg := "Clear pricing information found"
		if len(extras) > 0 {
			msg += " (also mentions: " + strings.Join(extras, ", ") + ")"
		}
		return pass(msg)
	default:
		return warning("No clear pricing information found")
	}
}
