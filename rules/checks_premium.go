package rules

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	minimumSpec     = regexp.MustCompile(`(?i)\bminimum\b`)
	recommendedSpec = regexp.MustCompile(`(?i)\brecommended\b`)

	// One pattern per hardware category: OS, processor, memory, storage, graphics
	specCategories = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:windows|macos|mac os|os x|linux|steamos|ubuntu)\b`),
		regexp.MustCompile(`(?i)\b(?:processor|cpu|intel|amd|ryzen|core i[3579])\b|\d(?:\.\d+)?\s*ghz\b`),
		regexp.MustCompile(`(?i)\d+\s*(?:gb|mb)\s*(?:of\s+)?(?:ram|memory)\b|\bram\b|\bmemory:`),
		regexp.MustCompile(`(?i)\d+\s*(?:gb|mb|tb)\s*(?:of\s+)?(?:available\s+)?(?:space|storage|disk|hdd|ssd)\b|\bstorage:|\bdisk space\b|\bhard drive\b`),
		regexp.MustCompile(`(?i)\b(?:graphics|gpu|nvidia|geforce|radeon|directx|vram|opengl|vulkan)\b`),
	}

	matureWords     = newKeywordSet("violence", "violent", "blood", "gore", "nudity", "sexual", "drug", "alcohol", "gambling", "horror", "profanity", "strong language", "disturbing", "suicide", "explicit", "mature")
	disclosureWords = newKeywordSet("content warning", "content descriptor", "rated", "esrb", "pegi", "parental", "advisory", "age rating", "18+", "17+", "viewer discretion")

	multiplayerWords = newKeywordSet("multiplayer", "co-op", "coop", "pvp", "mmo", "versus mode", "split-screen", "online play", "play with friends")
	playerCount      = regexp.MustCompile(`(?i)\d+\s*(?:-|to)\s*\d+\s*players?|\d+\s*players?`)
	networkPhrases   = []string{"internet connection", "online connection", "requires internet", "internet required", "always online", "always-online", "broadband", "network connection"}
	serverPhrases    = []string{"dedicated server", "servers", "server", "matchmaking", "peer-to-peer", "p2p"}

	urlPattern     = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+|\b[a-z0-9-]+\.(?:com|net|org|io|gg|co|me|tv|ly|app|dev)\b(?:/\S*)?`)
	impliedURL     = regexp.MustCompile(`(?i)\b(?:visit|check out|go to|head to|find us on)\s+(?:our\s+)?(?:website|site|homepage|web\s?page)\b|\b[a-z0-9-]+\s+dot\s+(?:com|net|org|io|gg)\b`)
	qrCodeMention  = regexp.MustCompile(`(?i)\bqr[\s-]?codes?\b`)
	emailAddress   = regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)
	supportWords   = newKeywordSet("support", "contact", "help desk", "customer service")
	communityWords = newKeywordSet("discord", "forum", "twitter", "reddit", "facebook", "social media", "steam community")
	bugWords       = newKeywordSet("bug", "feedback")
	discordWord    = newKeywordSet("discord")

	languageNames = newWordSet(
		"English", "French", "German", "Spanish", "Italian", "Portuguese",
		"Russian", "Japanese", "Korean", "Chinese", "Polish", "Turkish",
		"Dutch", "Swedish", "Norwegian", "Danish", "Finnish", "Czech",
		"Hungarian", "Arabic", "Thai", "Vietnamese", "Ukrainian", "Greek",
	)
	localizationWords = newKeywordSet("localization", "localisation", "localized", "localised", "translated", "subtitles", "languages")

	copyrightMark  = regexp.MustCompile(`(?i)©|\(c\)|\bcopyright\b`)
	trademarkMark  = regexp.MustCompile(`(?i)™|®|\btrademarks?\b|\bregistered\b`)
	rightsReserved = regexp.MustCompile(`(?i)\ball rights reserved\b`)
	copyrightYear  = regexp.MustCompile(`\b20\d{2}\b`)
	companyWord    = regexp.MustCompile(`(?i)\b(?:studios?|games|entertainment|interactive|software)\b`)
	thirdParty     = regexp.MustCompile(`(?i)\b(?:powered by|made with|built with|unreal engine|unity|licensed|third[\s-]party)\b`)
)

// CheckSystemRequirements looks for minimum and recommended specs covering
// OS, processor, memory, storage and graphics.
func CheckSystemRequirements(text string) Verdict {
	hasMinimum := minimumSpec.MatchString(text)
	hasRecommended := recommendedSpec.MatchString(text)

	categories := 0
	for _, p := range specCategories {
		if p.MatchString(text) {
			categories++
		}
	}

	switch {
	case hasMinimum && hasRecommended && categories >= 4:
		return pass(fmt.Sprintf("Minimum and recommended requirements listed (%d/5 categories)", categories))
	case hasMinimum && categories >= 3:
		return warning(fmt.Sprintf("Requirements found (%d/5 categories) but recommended specs are missing or incomplete", categories))
	case categories >= 2:
		return warning(fmt.Sprintf("Some hardware details mentioned (%d/5 categories); list minimum and recommended requirements", categories))
	default:
		return fail("No system requirements found")
	}
}

// CheckMatureContent warns when mature themes appear without a content
// warning or age rating.
func CheckMatureContent(text string) Verdict {
	themes := matureWords.Matches(text)
	if len(themes) == 0 {
		return pass("No mature content indicators found")
	}

	listed := strings.Join(firstN(themes, 3), ", ")
	if disclosureWords.Any(text) {
		return pass(fmt.Sprintf("Mature content (%s) is disclosed", listed))
	}
	return warning(fmt.Sprintf("Mature themes detected (%s) without a content warning or rating", listed))
}

// CheckMultiplayer asks multiplayer listings to state player counts and
// internet requirements.
func CheckMultiplayer(text string) Verdict {
	if !multiplayerWords.Any(text) {
		return pass("Single-player listing; no network disclosure needed")
	}

	lower := strings.ToLower(text)
	var missing []string
	if !playerCount.MatchString(text) {
		missing = append(missing, "player count")
	}
	if !containsAny(lower, networkPhrases...) {
		missing = append(missing, "internet requirements")
	}

	switch len(missing) {
	case 0:
		msg := "Multiplayer player count and internet requirements disclosed"
		if containsAny(lower, serverPhrases...) {
			msg += " (server details included)"
		}
		return pass(msg)
	case 1:
		return warning("Multiplayer listing should specify " + missing[0])
	default:
		return warning("Multiplayer listing should specify " + strings.Join(missing, " and "))
	}
}

// CheckExternalLinks flags URLs and QR codes, which store descriptions may not contain.
// Email addresses are contact details, not links.
func CheckExternalLinks(text string) Verdict {
	withoutEmail := emailAddress.ReplaceAllString(text, " ")
	if links := urlPattern.FindAllString(withoutEmail, -1); len(links) > 0 {
		return fail(fmt.Sprintf("Found %d external link(s); store descriptions must not contain URLs", len(links)))
	}
	if qrCodeMention.MatchString(text) {
		return fail("QR code reference found; external QR codes are not allowed")
	}
	if impliedURL.MatchString(text) {
		return warning("Text points players to an external website")
	}
	return pass("No external links found")
}

// CheckSupportContact looks for a support channel players can reach.
func CheckSupportContact(text string) Verdict {
	hasSupport := supportWords.Any(text)
	hasEmail := emailAddress.MatchString(text)
	hasCommunity := communityWords.Any(text)
	hasContact := hasEmail || hasCommunity

	switch {
	case hasSupport && hasContact:
		return pass("Support contact information provided")
	case bugWords.Any(text) || discordWord.Any(text):
		return pass("Feedback or community channel mentioned")
	case hasContact:
		return warning("Contact method found but no clear support information")
	case hasSupport:
		return warning("Support is mentioned but no way to reach it is given")
	default:
		return warning("No support or contact information found")
	}
}

// CheckLanguageSupport counts listed languages.
func CheckLanguageSupport(text string) Verdict {
	languages := languageNames.Matches(text)

	switch {
	case len(languages) >= 5:
		return pass(fmt.Sprintf("Supports %d languages", len(languages)))
	case len(languages) >= 3:
		return pass("Languages listed: " + strings.Join(languages, ", "))
	case len(languages) > 0 || localizationWords.Any(text):
		msg := "Language support list may be incomplete"
		if len(languages) > 0 {
			msg += " (found: " + strings.Join(languages, ", ") + ")"
		}
		return warning(msg)
	default:
		return warning("No language support information found")
	}
}

// CheckLegalCopyright scores copyright and trademark notices.
func CheckLegalCopyright(text string) Verdict {
	hasCopyright := copyrightMark.MatchString(text)
	hasTrademark := trademarkMark.MatchString(text)

	score := 0
	if hasCopyright {
		score += 2
	}
	for _, ok := range []bool{
		hasTrademark,
		rightsReserved.MatchString(text),
		copyrightYear.MatchString(text),
		companyWord.MatchString(text),
	} {
		if ok {
			score++
		}
	}

	switch {
	case score >= 4:
		return pass("Complete legal notice found")
	case hasCopyright || hasTrademark:
		return pass("Basic copyright or trademark notice found")
	case thirdParty.MatchString(text):
		return warning("Third-party credits found without your own copyright notice")
	default:
		return warning("No copyright or legal notice found")
	}
}
