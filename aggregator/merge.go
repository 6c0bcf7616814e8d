package aggregator

import (
	"sort"

	"tokenflow/models"
)

// authoritativeSource wins priceUsd/marketCapUsd conflicts when it reports
// non-zero values, regardless of arrival order.
const authoritativeSource = models.SourceBirdeye

// Merge combines per-source result sets into one deduplicated list keyed by
// address. Field-level merge: a later record fills or overwrites fields with
// its non-empty values only, so a populated field never regresses to empty.
// The authoritative source keeps priceUsd/marketCapUsd pinned once it has
// reported them. Output is sorted by createdAt descending; ties keep
// insertion order so repeated merges of unchanged input are byte-identical.
func Merge(sets ...[]models.Token) []models.Token {
	type slot struct {
		token         models.Token
		authoritative bool // price fields pinned by the authoritative source
	}

	index := make(map[string]int)
	slots := make([]slot, 0)

	for _, set := range sets {
		for _, tok := range set {
			if !tok.Valid() {
				continue
			}

			i, seen := index[tok.Address]
			if !seen {
				index[tok.Address] = len(slots)
				slots = append(slots, slot{
					token:         tok,
					authoritative: tok.Source == authoritativeSource && tok.PriceUsd > 0,
				})
				continue
			}

			s := &slots[i]
			pinnedPrice := s.token.PriceUsd
			pinnedMC := s.token.MarketCapUsd

			s.token.MergeFrom(tok)

			switch {
			case tok.Source == authoritativeSource && tok.PriceUsd > 0:
				// Fresh authoritative values take over the pin.
				s.authoritative = true
			case s.authoritative:
				s.token.PriceUsd = pinnedPrice
				if pinnedMC > 0 {
					s.token.MarketCapUsd = pinnedMC
				}
			}
		}
	}

	merged := make([]models.Token, len(slots))
	for i := range slots {
		merged[i] = slots[i].token
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})

	return merged
}
