package ingestion

import "github.com/Agnikulu/veritas/internal/models"

// Vector-store collection names (spec.md §6 persistence layout), distinct
// from the document-store table names of the same items.
const (
	CollectionVerifiedClaims = "verified_claims"
	CollectionNewsArticles   = "news_articles"
	CollectionGovBulletins   = "gov_bulletins"
	CollectionSocialPosts    = "social_posts"
)

// AllCollections lists every vector collection, for EnsureCollection calls at
// startup.
var AllCollections = []string{
	CollectionVerifiedClaims, CollectionNewsArticles, CollectionGovBulletins, CollectionSocialPosts,
}

func vectorCollectionFor(kind models.ItemKind) string {
	switch kind {
	case models.KindNews:
		return CollectionNewsArticles
	case models.KindGov:
		return CollectionGovBulletins
	case models.KindSocial:
		return CollectionSocialPosts
	case models.KindFactCheck:
		return CollectionVerifiedClaims
	default:
		return CollectionNewsArticles
	}
}
