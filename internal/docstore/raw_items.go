package docstore

import (
	"fmt"
	"time"

	"github.com/Agnikulu/veritas/internal/chunker"
	"github.com/Agnikulu/veritas/internal/models"
)

// InsertRawItem persists item's raw row (news_items/gov_items/social_items
// per kind). Per spec.md §4.5 rule 6, raw rows are inserted after their
// KBRecords are upserted — a raw row with no corresponding KBRecord is
// acceptable (seen but not indexed).
func (s *Store) InsertRawItem(rawID string, item models.RawItem) error {
	table, err := itemTable(item.Kind)
	if err != nil {
		return err
	}

	urlKey := ""
	if item.URL != "" {
		urlKey = chunker.NormalizeURL(item.URL)
	}

	_, err = s.db.Exec(
		fmt.Sprintf(`INSERT OR REPLACE INTO %s
			(raw_id, provider_tag, source_name, url, url_key, title, body, published_at, language, ingested_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, table),
		rawID, item.ProviderTag, item.SourceName, nullableString(item.URL), nullableString(urlKey),
		nullableString(item.Title), item.Body, formatTimePtr(item.PublishedAt), nullableString(item.Language),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert raw item into %s: %w", table, err)
	}
	return nil
}

// HistoricalURLKeys returns every url_key already persisted for kind, used to
// seed the deduper across ingestion runs.
func (s *Store) HistoricalURLKeys(kind models.ItemKind) ([]string, error) {
	table, err := itemTable(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(fmt.Sprintf(`SELECT url_key FROM %s WHERE url_key IS NOT NULL AND url_key != ''`, table))
	if err != nil {
		return nil, fmt.Errorf("query historical url keys from %s: %w", table, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
