package place

import (
	"strings"

	"github.com/beanraft/district-cli/internal/refdata"
)

// maxExpansions caps the geocoding candidate list.
const maxExpansions = 5

// provinceForms maps colloquial province prefixes to official names.
var provinceForms = map[string]string{
	"서울":  "서울특별시",
	"서울시": "서울특별시",
	"부산":  "부산광역시",
	"부산시": "부산광역시",
	"대구":  "대구광역시",
	"대구시": "대구광역시",
	"인천":  "인천광역시",
	"인천시": "인천광역시",
	"광주":  "광주광역시",
	"대전":  "대전광역시",
	"대전시": "대전광역시",
	"울산":  "울산광역시",
	"경기":  "경기도",
}

// Expand returns the ordered geocoding candidates for a normalized query.
// The raw text is always first; each later entry applies one fixed
// rewrite. Results are deduplicated preserving order.
func Expand(text string, divisions *refdata.Table) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] || len(out) >= maxExpansions {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	add(text)

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return out
	}

	// Official province prefix: 서울시 종로구 → 서울특별시 종로구.
	if official, ok := provinceForms[tokens[0]]; ok && len(tokens) > 1 {
		add(official + " " + strings.Join(tokens[1:], " "))
	}

	// District prefix for dong-led queries: 창신동 407-4 → 종로구 창신동
	// 407-4, but only when the dong name pins down a single district.
	if divisions != nil && strings.HasSuffix(tokens[0], "동") {
		districts := make(map[string]refdata.Division)
		for _, d := range divisions.ByBase(tokens[0]) {
			districts[d.Province+" "+d.District] = d
		}
		if len(districts) == 1 {
			for _, d := range districts {
				add(d.District + " " + text)
				add(d.Province + " " + d.District + " " + text)
			}
		}
	}

	// Transit-station token: 강남역 → 강남, 성수 → 성수역. Only for short
	// queries without lot numbers, where the station reading is plausible.
	if len(tokens) == 1 && !strings.ContainsAny(text, "0123456789") {
		if stripped, ok := strings.CutSuffix(text, "역"); ok {
			add(stripped)
		} else {
			add(text + "역")
		}
	}

	return out
}
