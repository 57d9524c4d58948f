// honeypot.go implements the Worker's "suspected block" classification: a
// fetched page that loaded and produced DOM content but is actually an
// anti-bot interstitial (a CAPTCHA challenge, a WAF block page) rather than
// the listing payload. Distinguishing this from a genuine missing_payload
// lets the Worker's audit trail and detection.log carry a more specific
// reason even though both trigger the same retry path (spec.md §4.3/§7).
//
// Adapted from internal/browser/honeypot.go's AnalyzePage element-scanning
// shape in the teacher repo: that file pushed per-element facts into a
// Mangle engine for declarative honeypot-link rules. The harvester has no
// logic-kernel component for Mangle facts to feed (see DESIGN.md), and
// "is this a trap link" is the wrong question for block detection anyway —
// so this keeps the teacher's "scan the live page for signals, return
// named reasons" shape but replaces per-element CSS/attribute fact
// emission with a direct title/body text scan against known anti-bot
// phrase sets.
package browser

import (
	"strings"

	"github.com/go-rod/rod"
)

// BlockSignal is one matched indicator contributing to a block verdict.
type BlockSignal struct {
	Reason string
}

// BlockVerdict is the result of scanning a loaded page for anti-bot
// interstitial signals.
type BlockVerdict struct {
	Blocked    bool
	Signals    []string
	Confidence float64
}

// blockTitlePhrases match common anti-bot/WAF interstitial page titles.
var blockTitlePhrases = []string{
	"access denied", "attention required", "are you a human",
	"just a moment", "security check", "captcha", "request blocked",
	"unusual traffic",
}

// blockBodyPhrases match common anti-bot/WAF interstitial body copy.
var blockBodyPhrases = []string{
	"verify you are a human", "complete the security check",
	"checking your browser before accessing", "please enable cookies",
	"access to this page has been denied", "detected unusual traffic",
	"ray id", "cf-browser-verification",
}

// classify lowercases already-extracted title/body text, scans it for the
// known phrase sets and builds the resulting verdict. Split out from DetectBlock so the phrase-matching
// logic is unit-testable without a live rod.Page.
func classify(title, body string) BlockVerdict {
	title = strings.ToLower(title)
	body = strings.ToLower(body)

	var signals []string
	for _, p := range blockTitlePhrases {
		if strings.Contains(title, p) {
			signals = append(signals, "title: "+p)
		}
	}
	for _, p := range blockBodyPhrases {
		if strings.Contains(body, p) {
			signals = append(signals, "body: "+p)
		}
	}

	verdict := BlockVerdict{Signals: signals}
	if len(signals) > 0 {
		verdict.Blocked = true
		verdict.Confidence = confidenceFor(len(signals))
	}
	return verdict
}

// DetectBlock scans a loaded page's title and visible body text for known
// anti-bot interstitial phrasing. A single matched phrase, in the title or
// the body, flags the page as blocked; title and body matches count the
// same, and confidence grows only with the number of matches.
func DetectBlock(page *rod.Page) (BlockVerdict, error) {
	info, err := page.Info()
	if err != nil {
		return BlockVerdict{}, err
	}

	bodyText := ""
	if body, err := page.Element("body"); err == nil {
		if t, err := body.Text(); err == nil {
			bodyText = t
		}
	}
	return classify(info.Title, bodyText), nil
}

// confidenceFor scales with the number of independent signals matched,
// capping at 0.95 since text-heuristic detection is never fully certain.
func confidenceFor(n int) float64 {
	c := 0.5 + 0.15*float64(n)
	if c > 0.95 {
		c = 0.95
	}
	return c
}
