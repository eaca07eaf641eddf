package tiered

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
)

// GenerateKey derives the cache key for a method call: the method name joined
// to the first 16 hex characters of the MD5 of the canonical parameter JSON.
// Map keys are marshaled in sorted order, so parameter ordering never changes
// the key.
func GenerateKey(method string, params map[string]any) (string, error) {
	if method == "" {
		return "", errors.New("method name is required")
	}

	canonical, err := json.Marshal(params)
	if err != nil {
		return "", errors.Wrap(err, "unable to canonicalize parameters")
	}

	sum := md5.Sum(canonical)
	return method + ":" + hex.EncodeToString(sum[:])[:16], nil
}
