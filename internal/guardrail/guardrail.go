package guardrail

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	gwerrors "github.com/aristath/sentinel-gateway/internal/errors"
)

// Config is the guardrail's constructor-parameter policy surface.
type Config struct {
	StrictMode        bool
	AutoAddDisclaimer bool
	DefaultLanguage   string
	StrictLimit       int
}

func (c Config) withDefaults() Config {
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = "en"
	}
	if c.StrictLimit <= 0 {
		c.StrictLimit = 3
	}
	return c
}

// Guardrail is the final-stage compliance text processor: detect language,
// scan four pattern buckets, optionally block in strict mode, rewrite,
// apply a descriptive-tone pass, clean up grammar, and inject a
// regionally appropriate disclaimer.
type Guardrail struct {
	cfg         Config
	disclaimers *DisclaimerGenerator
	log         zerolog.Logger
}

func New(cfg Config, disclaimers *DisclaimerGenerator, log zerolog.Logger) *Guardrail {
	return &Guardrail{
		cfg:         cfg.withDefaults(),
		disclaimers: disclaimers,
		log:         log.With().Str("component", "guardrail").Logger(),
	}
}

// Process runs the full pipeline. languageOverride, if non-empty, skips
// detection. Empty input passes through unchanged.
func (g *Guardrail) Process(text, assetClass, region, languageOverride string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return &Result{
			Action:        ActionPassed,
			OriginalText:  text,
			ProcessedText: text,
			Confidence:    1,
			IsCompliant:   true,
		}, nil
	}

	lang := languageOverride
	if lang == "" {
		lang = detectLanguage(text)
	}

	violations := g.scan(text, lang)

	if g.cfg.StrictMode && len(violations) > g.cfg.StrictLimit {
		return &Result{
			Action:           ActionBlocked,
			OriginalText:     text,
			ProcessedText:    "",
			ViolationsFound:  violations,
			Confidence:       0.0,
			DetectedLanguage: lang,
			IsCompliant:      false,
			WasModified:      false,
		}, gwerrors.ComplianceBlockedError{ViolationCount: len(violations)}
	}

	processed := text
	var modifications []Modification

	processed, modifications = g.rewrite(processed, lang, modifications)

	if lang == "en" {
		processed, modifications = applyDescriptiveTone(processed, modifications)
	}

	processed, modifications = grammarCleanup(processed, modifications)

	disclaimerAdded := false
	if g.cfg.AutoAddDisclaimer && g.disclaimers != nil && !g.disclaimers.hasDisclaimer(processed) {
		disclaimer := g.disclaimers.Generate(region, assetClass)
		processed = strings.TrimSpace(processed) + "\n\n" + disclaimer
		modifications = append(modifications, Modification{Step: "disclaimer", From: "", To: disclaimer})
		disclaimerAdded = true
	}

	action := ActionPassed
	if len(violations) > 0 || len(modifications) > 0 {
		action = ActionModified
	}

	confidence := 0.95 - 0.05*float64(len(violations)+len(modifications))
	if confidence < 0.5 {
		confidence = 0.5
	}

	return &Result{
		Action:           action,
		OriginalText:     text,
		ProcessedText:    processed,
		Modifications:    modifications,
		ViolationsFound:  violations,
		DisclaimerAdded:  disclaimerAdded,
		Confidence:       confidence,
		DetectedLanguage: lang,
		IsCompliant:      action == ActionPassed || action == ActionModified,
		WasModified:      action == ActionModified,
	}, nil
}

// scan collects violations across the four buckets for the detected
// language, plus the English buckets when the text is non-English, to
// catch code-switched content.
func (g *Guardrail) scan(text, lang string) []Violation {
	var out []Violation
	out = append(out, scanLanguage(text, lang)...)
	if lang != "en" {
		out = append(out, scanLanguage(text, "en")...)
	}
	return out
}

func scanLanguage(text, lang string) []Violation {
	p := patternsFor(lang)
	var out []Violation

	for _, re := range p.prescriptive {
		for _, m := range re.FindAllString(text, -1) {
			out = append(out, Violation{Bucket: string(bucketPrescriptiveVerb), Language: lang, Matched: m})
		}
	}
	for _, rule := range p.advice {
		for _, m := range rule.pattern.FindAllString(text, -1) {
			out = append(out, Violation{Bucket: string(bucketAdvicePattern), Language: lang, Matched: m})
		}
	}
	for _, rule := range p.opinion {
		for _, m := range rule.pattern.FindAllString(text, -1) {
			out = append(out, Violation{Bucket: string(bucketOpinionAsFact), Language: lang, Matched: m})
		}
	}
	for _, rule := range p.certainty {
		for _, m := range rule.pattern.FindAllString(text, -1) {
			out = append(out, Violation{Bucket: string(bucketCertaintyPrediction), Language: lang, Matched: m})
		}
	}
	return out
}

// rewrite applies advice -> opinion -> certainty replacements sequentially,
// for the detected language and, for code-switched non-English text, the
// English rule set as well.
func (g *Guardrail) rewrite(text, lang string, mods []Modification) (string, []Modification) {
	text, mods = applyRewriteSet(text, patternsFor(lang), mods)
	if lang != "en" {
		text, mods = applyRewriteSet(text, patternsFor("en"), mods)
	}
	return text, mods
}

func applyRewriteSet(text string, p languagePatterns, mods []Modification) (string, []Modification) {
	text, mods = applyRules(text, p.advice, "advice_rewrite", mods)
	text, mods = applyRules(text, p.opinion, "opinion_rewrite", mods)
	text, mods = applyRules(text, p.certainty, "certainty_rewrite", mods)
	return text, mods
}

func applyRules(text string, rules []rewriteRule, step string, mods []Modification) (string, []Modification) {
	for _, rule := range rules {
		if rule.pattern.MatchString(text) {
			before := text
			text = rule.pattern.ReplaceAllString(text, rule.replacement)
			if text != before {
				mods = append(mods, Modification{Step: step, From: before, To: text})
			}
		}
	}
	return text, mods
}

var descriptiveToneRules = []rewriteRule{
	{regexp.MustCompile(`(?i)\byou should buy\b`), "purchasing options are available for"},
	{regexp.MustCompile(`(?i)\byou should sell\b`), "selling options are available for"},
	{regexp.MustCompile(`(?i)\byou could buy\b`), "purchasing options are available for"},
}

func applyDescriptiveTone(text string, mods []Modification) (string, []Modification) {
	return applyRules(text, descriptiveToneRules, "descriptive_tone", mods)
}

var (
	doubleSpace     = regexp.MustCompile(`[ \t]{2,}`)
	doubleArticle   = regexp.MustCompile(`(?i)\b(the|a|an)\s+(the|a|an)\b`)
	doubleAuxiliary = regexp.MustCompile(`(?i)\b(is|are|was|were)\s+(is|are|was|were)\b`)
)

// grammarCleanup collapses double articles/auxiliaries left behind by
// rewrite substitutions, squashes double spaces, and recapitalizes the
// start of the text.
func grammarCleanup(text string, mods []Modification) (string, []Modification) {
	before := text

	text = doubleArticle.ReplaceAllStringFunc(text, func(m string) string {
		parts := strings.Fields(m)
		if len(parts) == 0 {
			return m
		}
		return parts[0]
	})
	text = doubleAuxiliary.ReplaceAllStringFunc(text, func(m string) string {
		parts := strings.Fields(m)
		if len(parts) == 0 {
			return m
		}
		return parts[0]
	})
	text = doubleSpace.ReplaceAllString(text, " ")
	text = recapitalize(text)

	if text != before {
		mods = append(mods, Modification{Step: "grammar_cleanup", From: before, To: text})
	}
	return text, mods
}

func recapitalize(text string) string {
	trimmed := strings.TrimLeft(text, " \t")
	if trimmed == "" {
		return text
	}
	leadingLen := len(text) - len(trimmed)
	r := []rune(trimmed)
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return text[:leadingLen] + string(r)
}
