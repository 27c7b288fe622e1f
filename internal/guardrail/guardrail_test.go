package guardrail

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/aristath/sentinel-gateway/internal/errors"
)

func newTestGuardrail(t *testing.T, cfg Config) *Guardrail {
	t.Helper()
	gen, err := NewDisclaimerGenerator()
	require.NoError(t, err)
	return New(cfg, gen, zerolog.Nop())
}

func TestProcess_EmptyInputPassesThroughUnchanged(t *testing.T) {
	g := newTestGuardrail(t, Config{AutoAddDisclaimer: true})

	result, err := g.Process("", "equity", "us", "")
	require.NoError(t, err)
	assert.Equal(t, ActionPassed, result.Action)
	assert.Equal(t, "", result.ProcessedText)
}

func TestProcess_CleanInputWithDisclaimerPasses(t *testing.T) {
	g := newTestGuardrail(t, Config{AutoAddDisclaimer: true})

	text := "AAPL closed at $190. This information is provided for informational purposes only."
	result, err := g.Process(text, "equity", "us", "en")
	require.NoError(t, err)
	assert.Equal(t, ActionPassed, result.Action)
	assert.Equal(t, text, result.ProcessedText)
	assert.Empty(t, result.ViolationsFound)
}

func TestProcess_RewritesAdviceLanguage(t *testing.T) {
	g := newTestGuardrail(t, Config{AutoAddDisclaimer: false})

	result, err := g.Process("You should buy AAPL now.", "equity", "us", "en")
	require.NoError(t, err)
	assert.Equal(t, ActionModified, result.Action)
	assert.NotContains(t, result.ProcessedText, "you should buy")
	assert.NotEmpty(t, result.Modifications)
}

func TestProcess_InjectsDisclaimerWhenMissing(t *testing.T) {
	g := newTestGuardrail(t, Config{AutoAddDisclaimer: true})

	result, err := g.Process("AAPL is trading at $190.", "equity", "us", "en")
	require.NoError(t, err)
	assert.True(t, result.DisclaimerAdded)
	assert.Contains(t, result.ProcessedText, "informational purposes only")
}

func TestProcess_StrictModeBlocksAboveLimit(t *testing.T) {
	g := newTestGuardrail(t, Config{StrictMode: true, StrictLimit: 1})

	text := "You must buy now. You should sell later. This is undervalued and guaranteed to rise, it will rise."
	result, err := g.Process(text, "equity", "us", "en")
	require.Error(t, err)
	var blocked gwerrors.ComplianceBlockedError
	assert.ErrorAs(t, err, &blocked)
	assert.Equal(t, ActionBlocked, result.Action)
	assert.Empty(t, result.ProcessedText)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestProcess_IdempotentOnSecondPass(t *testing.T) {
	g := newTestGuardrail(t, Config{AutoAddDisclaimer: true})

	first, err := g.Process("You should buy AAPL now.", "equity", "us", "en")
	require.NoError(t, err)

	second, err := g.Process(first.ProcessedText, "equity", "us", "en")
	require.NoError(t, err)
	assert.Contains(t, []Action{ActionPassed, ActionModified}, second.Action)
}

func TestDetectLanguage_ScriptDetection(t *testing.T) {
	assert.Equal(t, "ja", detectLanguage("これはテストです"))
	assert.Equal(t, "zh", detectLanguage("这是一个测试"))
	assert.Equal(t, "fa", detectLanguage("این یک آزمایش است"))
}

func TestDetectLanguage_DefaultsToEnglishBelowThreshold(t *testing.T) {
	assert.Equal(t, "en", detectLanguage("AAPL closed higher today"))
}

func TestDetectLanguage_FunctionWordScoringOverridesToSpanish(t *testing.T) {
	assert.Equal(t, "es", detectLanguage("el precio de la accion y el mercado se para con los que"))
}

func TestDisclaimerGenerator_GenerateMultiAssetDedupesFragments(t *testing.T) {
	gen, err := NewDisclaimerGenerator()
	require.NoError(t, err)

	out := gen.GenerateMultiAsset("us", []string{"equity", "equity", "crypto"})
	assert.Contains(t, out, "Equity prices")
	assert.Contains(t, out, "Digital assets")
}
