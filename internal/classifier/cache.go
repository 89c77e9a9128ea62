package classifier

import (
	"crypto/sha1"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/samvad-hq/report-enhancer/internal/domain"
)

// SiteClassifier is the classification surface consumed by the renderer.
type SiteClassifier interface {
	Classify(html, url string) domain.SiteClassification
	ChooseStrategy(html, url string) domain.Strategy
}

// Memo caches classifier results keyed by a digest of (url, html).
type Memo struct {
	inner *Classifier
	cache *cache.Cache
}

// NewMemo wraps c. A non-positive ttl returns c unwrapped.
func NewMemo(c *Classifier, ttl time.Duration) SiteClassifier {
	if ttl <= 0 {
		return c
	}
	return &Memo{inner: c, cache: cache.New(ttl, 2*ttl)}
}

// Classify returns the cached classification for (html, url), computing it on a miss.
func (m *Memo) Classify(html, url string) domain.SiteClassification {
	key := "c:" + digest(html, url)
	if v, ok := m.cache.Get(key); ok {
		return v.(domain.SiteClassification)
	}
	sc := m.inner.Classify(html, url)
	m.cache.SetDefault(key, sc)
	return sc
}

// ChooseStrategy returns the cached strategy for (html, url), computing it on a miss.
func (m *Memo) ChooseStrategy(html, url string) domain.Strategy {
	key := "s:" + digest(html, url)
	if v, ok := m.cache.Get(key); ok {
		return v.(domain.Strategy)
	}
	s := m.inner.ChooseStrategy(html, url)
	m.cache.SetDefault(key, s)
	return s
}

func digest(html, url string) string {
	h := sha1.New()
	h.Write([]byte(url))
	h.Write([]byte{0})
	h.Write([]byte(html))
	return hex.EncodeToString(h.Sum(nil))
}
