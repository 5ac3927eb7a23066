package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// varyHeaders take part in the response key
var varyHeaders = []string{"Accept"}

// generationKey holds the invalidation counter of a resource type
func generationKey(typeName string) string {
	return "gen:" + typeName
}

// responseKey identifies a rendered document of typeName at generation. The
// query is normalised so parameter order does not matter.
func responseKey(typeName string, generation int64, r *http.Request) string {
	parts := []string{r.URL.Path}

	query := r.URL.Query()
	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		values := append([]string(nil), query[name]...)
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, name+"="+v)
		}
	}

	for _, h := range varyHeaders {
		if v := r.Header.Get(h); v != "" {
			parts = append(parts, h+":"+v)
		}
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return "resp:" + typeName + ":" + strconv.FormatInt(generation, 10) + ":" + hex.EncodeToString(hash[:16])
}

// resourceType returns the first path segment after prefix, or "" when path
// is outside the API
func resourceType(prefix, path string) string {
	rest, ok := strings.CutPrefix(path, prefix+"/")
	if !ok {
		return ""
	}
	typeName, _, _ := strings.Cut(rest, "/")
	return typeName
}
