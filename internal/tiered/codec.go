package tiered

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/varoOP/anicachedb/internal/domain"
)

// Method names whose payload shapes this cache understands.
const (
	MethodAnimeDetails = "get_anime_details"
	MethodSearchAnime  = "search_anime"
)

// DecodeParsed turns a cached parsed payload back into its typed form based
// on the method that produced it: *domain.AnimeDetails for detail lookups,
// []domain.SearchResult for searches.
func DecodeParsed(method, parsedJSON string) (any, error) {
	switch method {
	case MethodAnimeDetails:
		var details domain.AnimeDetails
		if err := json.Unmarshal([]byte(parsedJSON), &details); err != nil {
			return nil, errors.Wrapf(err, "invalid cached payload for %s", method)
		}
		return &details, nil
	case MethodSearchAnime:
		var results []domain.SearchResult
		if err := json.Unmarshal([]byte(parsedJSON), &results); err != nil {
			return nil, errors.Wrapf(err, "invalid cached payload for %s", method)
		}
		return results, nil
	default:
		return nil, errors.Errorf("unknown cache method %q", method)
	}
}

// EncodeParsed is the inverse of DecodeParsed for storing typed values.
func EncodeParsed(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", errors.Wrap(err, "unable to encode payload")
	}
	return string(data), nil
}
