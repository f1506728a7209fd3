package scoring

import (
	"context"
	"fmt"
	"strings"

	"cashmon/internal/cache"
)

// Clusterer maps a normalized label to a deal-type cluster id.
type Clusterer interface {
	Cluster(ctx context.Context, label string) (int, error)
}

// ClustererFunc adapts a function to Clusterer.
type ClustererFunc func(ctx context.Context, label string) (int, error)

func (f ClustererFunc) Cluster(ctx context.Context, label string) (int, error) {
	return f(ctx, label)
}

// KeywordClusterer assigns the first rule, in artifact order, sharing a
// token with the label. Labels matching no rule get the fallback cluster.
type KeywordClusterer struct {
	rules    []keywordRule
	fallback int
}

type keywordRule struct {
	id       int
	keywords map[string]struct{}
}

// NewKeywordClusterer builds the clusterer described by an artifact.
func NewKeywordClusterer(a *Artifact) (*KeywordClusterer, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	rules := make([]keywordRule, 0, len(a.Clusters))
	for _, c := range a.Clusters {
		kw := make(map[string]struct{}, len(c.Keywords))
		for _, k := range c.Keywords {
			kw[strings.ToLower(strings.TrimSpace(k))] = struct{}{}
		}
		rules = append(rules, keywordRule{id: c.ID, keywords: kw})
	}
	return &KeywordClusterer{rules: rules, fallback: a.DefaultCluster}, nil
}

func (k *KeywordClusterer) Cluster(_ context.Context, label string) (int, error) {
	tokens := strings.Fields(label)
	for _, r := range k.rules {
		for _, tok := range tokens {
			if _, ok := r.keywords[tok]; ok {
				return r.id, nil
			}
		}
	}
	return k.fallback, nil
}

// CachedClusterer memoizes another clusterer by label. Failed lookups are
// not cached.
type CachedClusterer struct {
	next  Clusterer
	cache cache.Cache[int]
}

func NewCachedClusterer(next Clusterer, c cache.Cache[int]) *CachedClusterer {
	return &CachedClusterer{next: next, cache: c}
}

func (c *CachedClusterer) Cluster(ctx context.Context, label string) (int, error) {
	if id, ok := c.cache.Get(label); ok {
		return id, nil
	}
	id, err := c.next.Cluster(ctx, label)
	if err != nil {
		return 0, fmt.Errorf("cluster %q: %w", label, err)
	}
	c.cache.Set(label, id)
	return id, nil
}
