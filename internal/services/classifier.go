package services

import (
	"strings"

	"autoshard/internal/models"
)

// ManifestClassifier classifies tables from explicit lists of sharded and
// shard-related table names. Names match case-insensitively.
type ManifestClassifier struct {
	sharded      map[string]struct{}
	shardRelated map[string]struct{}
}

func NewManifestClassifier(sharded, shardRelated []string) *ManifestClassifier {
	return &ManifestClassifier{
		sharded:      toSet(sharded),
		shardRelated: toSet(shardRelated),
	}
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = struct{}{}
	}
	return set
}

func (c *ManifestClassifier) IsShardedModel(table string) bool {
	_, ok := c.sharded[strings.ToLower(table)]
	return ok
}

func (c *ManifestClassifier) IsShardRelatedModel(table string) bool {
	_, ok := c.shardRelated[strings.ToLower(table)]
	return ok
}

// Classify returns Sharded before ShardRelated when a table is listed twice.
func (c *ManifestClassifier) Classify(table string) models.TableKind {
	switch {
	case c.IsShardedModel(table):
		return models.Sharded
	case c.IsShardRelatedModel(table):
		return models.ShardRelated
	default:
		return models.Plain
	}
}
