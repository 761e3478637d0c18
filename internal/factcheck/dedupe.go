package factcheck

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	gocache "github.com/patrickmn/go-cache"
)

// Default windows for the bounded dedup/caching behavior. Dedup is
// scoped to a recent window, not the whole meeting history.
const (
	DefaultSentenceDedupeTTL = 30 * time.Second
	DefaultVerdictCacheTTL   = 5 * time.Minute
)

// deduper holds the per-session dedup state: a recent-sentence window
// that drops resubmitted transcript text, and a verdict cache that lets
// a repeated claim reuse its earlier verdict without new external
// calls.
type deduper struct {
	sentences *gocache.Cache
	verdicts  *gocache.Cache
}

func newDeduper(sentenceTTL, verdictTTL time.Duration) *deduper {
	if sentenceTTL <= 0 {
		sentenceTTL = DefaultSentenceDedupeTTL
	}
	if verdictTTL <= 0 {
		verdictTTL = DefaultVerdictCacheTTL
	}
	return &deduper{
		sentences: gocache.New(sentenceTTL, time.Minute),
		verdicts:  gocache.New(verdictTTL, time.Minute),
	}
}

// seenSentence reports whether the sentence text was already processed
// within the window, marking it seen either way.
func (d *deduper) seenSentence(text string) bool {
	key := normalizedHash(text)
	if _, found := d.sentences.Get(key); found {
		d.sentences.SetDefault(key, struct{}{}) // extend the window
		return true
	}
	d.sentences.SetDefault(key, struct{}{})
	return false
}

// cachedVerdict returns the verdict previously produced for an
// equivalent claim text, if still within the cache window.
func (d *deduper) cachedVerdict(claimText string) (Verdict, bool) {
	if v, found := d.verdicts.Get(normalizedHash(claimText)); found {
		return v.(Verdict), true
	}
	return Verdict{}, false
}

// cacheVerdict stores a verdict for reuse by equivalent future claims.
func (d *deduper) cacheVerdict(claimText string, v Verdict) {
	d.verdicts.SetDefault(normalizedHash(claimText), v)
}

// normalizedHash hashes text after lowercasing, stripping punctuation
// and collapsing whitespace, so trivially re-worded duplicates collide.
func normalizedHash(text string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			sb.WriteRune(r)
		}
	}
	normalized := strings.Join(strings.Fields(sb.String()), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
