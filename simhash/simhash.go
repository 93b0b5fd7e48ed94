// Package simhash fingerprints DOM structure so the pipeline can tell
// whether browser rendering materially changes a page. Fingerprints are
// 64-bit SimHashes over the page's tag sequence; text content and
// attributes are deliberately ignored, so a server-rendered article and
// its re-rendered twin hash close together while an SPA shell and its
// hydrated result land far apart.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"

	"golang.org/x/net/html"
)

// shingleSize is the n-gram width over the tag stream. Single tags are too
// common to discriminate; triples capture local nesting shape.
const shingleSize = 3

// FingerprintDOM returns the structural fingerprint of an HTML document.
// Empty or tagless input fingerprints to zero.
func FingerprintDOM(htmlStr string) uint64 {
	tags := tagStream(htmlStr)
	if len(tags) == 0 {
		return 0
	}
	if len(tags) < shingleSize {
		// Too few tags for shingling; hash the bare sequence.
		return hashTokens(tags)
	}

	shingles := make([]string, 0, len(tags)-shingleSize+1)
	for i := 0; i <= len(tags)-shingleSize; i++ {
		shingles = append(shingles, strings.Join(tags[i:i+shingleSize], ">"))
	}
	return hashTokens(shingles)
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether two fingerprints are within threshold bits of
// each other. The pipeline treats similar raw/rendered pairs as proof that
// rendering adds nothing for the host.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

// tagStream tokenizes HTML and returns the open and self-closing tag names
// in document order. Malformed markup ends the stream at the error rather
// than failing; the tokenizer yields whatever prefix parses.
func tagStream(htmlStr string) []string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	var tags []string
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			tags = append(tags, string(name))
		}
	}
}

// hashTokens folds tokens into a SimHash: each token's FNV-64a hash votes
// per bit position, and the sign of each tally sets the output bit.
func hashTokens(tokens []string) uint64 {
	var vector [64]int
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}
