package httpx

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLimitOffset(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		defLimit   int
		maxLimit   int
		wantLimit  int
		wantOffset int
	}{
		{name: "defaults", target: "/api/jobs", defLimit: 50, maxLimit: 1000, wantLimit: 50, wantOffset: 0},
		{name: "explicit values", target: "/api/jobs?limit=10&offset=20", defLimit: 50, maxLimit: 1000, wantLimit: 10, wantOffset: 20},
		{name: "limit clamped to max", target: "/api/jobs?limit=5000", defLimit: 50, maxLimit: 1000, wantLimit: 1000, wantOffset: 0},
		{name: "limit floor of one", target: "/api/jobs?limit=0", defLimit: 50, maxLimit: 1000, wantLimit: 1, wantOffset: 0},
		{name: "negative offset reset", target: "/api/jobs?offset=-5", defLimit: 50, maxLimit: 1000, wantLimit: 50, wantOffset: 0},
		{name: "garbage ignored", target: "/api/jobs?limit=abc&offset=xyz", defLimit: 50, maxLimit: 1000, wantLimit: 50, wantOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.target, nil)
			limit, offset := ParseLimitOffset(r, tt.defLimit, tt.maxLimit)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}
