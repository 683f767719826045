package repository

import (
	"context"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// ShareMatch is a share found by SearchShares. Distance is the Levenshtein distance between
// the query and the matched name; lower is closer.
type ShareMatch struct {
	Share    Share
	Distance int
}

// SearchShares returns shares whose full name fuzzily contains query, closest first. An ISIN
// query matches exactly. A limit below one returns every match.
func (r *PostgresShareRepository) SearchShares(ctx context.Context, query string, limit int) ([]ShareMatch, error) {
	shares, err := r.ListShares(ctx)
	if err != nil {
		return nil, err
	}
	return rankShares(shares, query, limit), nil
}

func rankShares(shares []Share, query string, limit int) []ShareMatch {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	var matches []ShareMatch
	for _, s := range shares {
		if strings.EqualFold(s.ISIN, query) {
			matches = append(matches, ShareMatch{Share: s, Distance: -1})
			continue
		}
		if d := fuzzy.RankMatchNormalizedFold(query, s.FullName); d >= 0 {
			matches = append(matches, ShareMatch{Share: s, Distance: d})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
