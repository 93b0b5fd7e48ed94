package gate

import (
	"strings"

	"golang.org/x/net/html"
)

// spaMarkers are substrings that give away a client-rendered shell: empty
// framework mount points and hydration payloads.
var spaMarkers = []string{
	`id="root"`,
	`id="app"`,
	`id="__next"`,
	"data-reactroot",
	"__NEXT_DATA__",
	"ng-version",
	"data-v-app",
}

// ContentFeatures are the raw signals the score is computed from.
type ContentFeatures struct {
	HTMLBytes      int
	TextChars      int
	ScriptChars    int
	AnchorCount    int
	ParagraphCount int
	HasTitle       bool
	HasMetaDesc    bool
	SPAMarkers     int
}

// Analyze tokenizes the document once and collects scoring signals. It never
// builds a DOM; a malformed page just yields weaker signals.
func Analyze(rawHTML string) ContentFeatures {
	f := ContentFeatures{HTMLBytes: len(rawHTML)}

	for _, marker := range spaMarkers {
		if strings.Contains(rawHTML, marker) {
			f.SPAMarkers++
		}
	}

	z := html.NewTokenizer(strings.NewReader(rawHTML))
	var inScript, inStyle, inTitle bool
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return f
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "script":
				inScript = true
			case "style":
				inStyle = true
			case "title":
				inTitle = true
			case "a":
				f.AnchorCount++
			case "p":
				f.ParagraphCount++
			case "meta":
				if hasAttr && metaIsDescription(z) {
					f.HasMetaDesc = true
				}
			}
		case html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) == "meta" && hasAttr && metaIsDescription(z) {
				f.HasMetaDesc = true
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script":
				inScript = false
			case "style":
				inStyle = false
			case "title":
				inTitle = false
			}
		case html.TextToken:
			text := z.Text()
			switch {
			case inScript:
				f.ScriptChars += len(text)
			case inStyle:
				// Styles count as neither text nor script.
			case inTitle:
				if len(strings.TrimSpace(string(text))) > 0 {
					f.HasTitle = true
				}
			default:
				f.TextChars += len(strings.TrimSpace(string(text)))
			}
		}
	}
}

func metaIsDescription(z *html.Tokenizer) bool {
	var isDesc, hasContent bool
	for {
		key, val, more := z.TagAttr()
		switch string(key) {
		case "name", "property":
			v := string(val)
			if v == "description" || v == "og:description" {
				isDesc = true
			}
		case "content":
			hasContent = len(val) > 0
		}
		if !more {
			break
		}
	}
	return isDesc && hasContent
}

// smallPageBytes is the size below which a page is assumed to be a shell
// waiting for scripts to fill it in.
const smallPageBytes = 2048

// Score condenses features into a quality score in [0,1]. Higher means the
// static HTML already carries the content. Deterministic.
func Score(f ContentFeatures) float64 {
	score := 0.5

	if f.HTMLBytes > 0 {
		textRatio := float64(f.TextChars) / float64(f.HTMLBytes)
		switch {
		case textRatio >= 0.2:
			score += 0.2
		case textRatio >= 0.05:
			score += 0.1
		}

		if float64(f.ScriptChars)/float64(f.HTMLBytes) >= 0.25 {
			score -= 0.2
		}
	}

	spaPenalty := 0.15 * float64(f.SPAMarkers)
	if spaPenalty > 0.3 {
		spaPenalty = 0.3
	}
	score -= spaPenalty

	if f.ParagraphCount > 5 {
		score += 0.1
	}
	if f.HasTitle {
		score += 0.05
	}
	if f.HasMetaDesc {
		score += 0.05
	}
	if f.HTMLBytes < smallPageBytes {
		score -= 0.2
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
