package rules

// Builtin rule IDs
const (
	RuleEarlyAccess         = "early-access"
	RuleDescriptionQuality  = "description-quality"
	RulePricingTransparency = "pricing-transparency"
	RuleSystemRequirements  = "system-requirements"
	RuleMatureContent       = "mature-content"
	RuleMultiplayerNetwork  = "multiplayer-network"
	RuleExternalLinks       = "external-links"
	RuleSupportContact      = "support-contact"
	RuleLanguageSupport     = "language-support"
	RuleLegalCopyright      = "legal-copyright"
)

// DefaultCatalogue returns the builtin listing checks: three free checks
// followed by seven premium ones.
func DefaultCatalogue() Catalogue {
	return Catalogue{
		{ID: RuleEarlyAccess, Name: "Early Access Compliance", Check: CheckEarlyAccess},
		{ID: RuleDescriptionQuality, Name: "Description Quality", Check: CheckDescriptionQuality},
		{ID: RulePricingTransparency, Name: "Pricing Transparency", Check: CheckPricingTransparency},
		{ID: RuleSystemRequirements, Name: "System Requirements", Premium: true, Check: CheckSystemRequirements},
		{ID: RuleMatureContent, Name: "Mature Content Disclosure", Premium: true, Check: CheckMatureContent},
		{ID: RuleMultiplayerNetwork, Name: "Multiplayer / Network Requirements", Premium: true, Check: CheckMultiplayer},
		{ID: RuleExternalLinks, Name: "External Links Check", Premium: true, Check: CheckExternalLinks},
		{ID: RuleSupportContact, Name: "Support / Contact Information", Premium: true, Check: CheckSupportContact},
		{ID: RuleLanguageSupport, Name: "Language Support", Premium: true, Check: CheckLanguageSupport},
		{ID: RuleLegalCopyright, Name: "Legal & Copyright", Premium: true, Check: CheckLegalCopyright},
	}
}

// IsBuiltinID reports whether id belongs to a builtin check
func IsBuiltinID(id string) bool {
	for _, r := range DefaultCatalogue() {
		if r.ID == id {
			return true
		}
	}
	return false
}
