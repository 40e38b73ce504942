package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// trackingParams are stripped when normalizing a URL for url_key computation.
// Not exhaustive — covers the common campaign-tracking families a news/social
// connector is likely to echo back.
var trackingParams = map[string]bool{
	"utm_source": true, "utm_medium": true, "utm_campaign": true,
	"utm_term": true, "utm_content": true, "fbclid": true, "gclid": true,
	"ref": true, "ref_src": true,
}

// NormalizeURL lowercases the host, strips tracking query params and the
// fragment, producing the url_key used for cross-run duplicate rejection.
func NormalizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if trackingParams[strings.ToLower(k)] {
				q.Del(k)
			}
		}
		u.RawQuery = q.Encode()
	}

	s := u.String()
	return strings.TrimRight(s, "?")
}

// ContentKey returns the sha256 digest of the normalized body, used to reject
// duplicate items within a single ingestion run. Content keys are not carried
// across runs; only URL keys are.
func ContentKey(body string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(body)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Deduper tracks URL and content keys seen so far across an ingestion run,
// plus the historical URL keys already persisted from prior runs.
type Deduper struct {
	historicalURLKeys map[string]bool
	seenURLKeys       map[string]bool
	seenContentKeys   map[string]bool
}

// NewDeduper constructs a Deduper seeded with the document store's known
// historical URL keys.
func NewDeduper(historicalURLKeys []string) *Deduper {
	d := &Deduper{
		historicalURLKeys: make(map[string]bool, len(historicalURLKeys)),
		seenURLKeys:       make(map[string]bool),
		seenContentKeys:   make(map[string]bool),
	}
	for _, k := range historicalURLKeys {
		d.historicalURLKeys[k] = true
	}
	return d
}

// Accept reports whether the item (identified by its raw URL and body)
// should be ingested, and records it as seen if so. URL-less items dedupe by
// content key only, per spec.md §4.4.
func (d *Deduper) Accept(rawURL, body string) bool {
	contentKey := ContentKey(body)

	if rawURL == "" {
		if d.seenContentKeys[contentKey] {
			return false
		}
		d.seenContentKeys[contentKey] = true
		return true
	}

	urlKey := NormalizeURL(rawURL)
	if d.historicalURLKeys[urlKey] || d.seenURLKeys[urlKey] {
		return false
	}
	if d.seenContentKeys[contentKey] {
		return false
	}

	d.seenURLKeys[urlKey] = true
	d.seenContentKeys[contentKey] = true
	return true
}
