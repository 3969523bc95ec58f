package httpx

import (
	"net/http"
	"strconv"
)

// intQuery reads an integer query parameter, falling back to def when the
// parameter is absent or unparseable.
func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// ParseLimitOffset reads the limit and offset pagination parameters, clamping
// limit into [1, maxLimit] and offset to be non-negative. History and job
// listings share these bounds.
func ParseLimitOffset(r *http.Request, defLimit, maxLimit int) (int, int) {
	if maxLimit < 1 {
		maxLimit = 1
	}

	limit := intQuery(r, "limit", defLimit)
	if limit < 1 {
		limit = 1
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	offset := intQuery(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
