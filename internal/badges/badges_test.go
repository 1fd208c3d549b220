package badges

import (
	"strings"
	"testing"
)

func TestForLevelThresholds(t *testing.T) {
	cases := []struct {
		level int
		want  string
	}{
		{0, ""},
		{2, ""},
		{3, Bronze},
		{4, Bronze},
		{5, Silver},
		{6, Silver},
		{7, Gold},
		{9, Gold},
		{10, Diamond},
		{12, Diamond},
	}
	for _, tc := range cases {
		b, ok := ForLevel(tc.level)
		if tc.want == "" {
			if ok {
				t.Fatalf("level %d: expected no badge, got %q", tc.level, b.ID)
			}
			continue
		}
		if !ok || b.ID != tc.want {
			t.Fatalf("level %d: expected %q, got %q (ok=%v)", tc.level, tc.want, b.ID, ok)
		}
	}
}

func TestForLevelMonotonic(t *testing.T) {
	prev := 0
	for level := -1; level <= 12; level++ {
		b, ok := ForLevel(level)
		tier := 0
		if ok {
			tier = b.UnlockLevel
		}
		if tier < prev {
			t.Fatalf("tier dropped at level %d: %d < %d", level, tier, prev)
		}
		prev = tier
	}
}

func TestCheckNewUnlock(t *testing.T) {
	cases := []struct {
		prev, next int
		want       string
	}{
		{2, 3, Bronze},
		{3, 4, ""},
		{4, 5, Silver},
		{0, 7, Gold},
		{9, 10, Diamond},
		{10, 10, ""},
		{5, 3, ""},
		{0, 2, ""},
	}
	for _, tc := range cases {
		b, ok := CheckNewUnlock(tc.prev, tc.next)
		if tc.want == "" {
			if ok {
				t.Fatalf("CheckNewUnlock(%d, %d): expected none, got %q", tc.prev, tc.next, b.ID)
			}
			continue
		}
		if !ok || b.ID != tc.want {
			t.Fatalf("CheckNewUnlock(%d, %d): expected %q, got %q", tc.prev, tc.next, tc.want, b.ID)
		}
	}
}

func TestNextMilestone(t *testing.T) {
	b, ok := NextMilestone(0)
	if !ok || b.ID != Bronze {
		t.Fatalf("expected bronze as first milestone, got %q", b.ID)
	}
	b, ok = NextMilestone(5)
	if !ok || b.ID != Gold {
		t.Fatalf("expected gold after level 5, got %q", b.ID)
	}
	if _, ok := NextMilestone(10); ok {
		t.Fatalf("expected no milestone past diamond")
	}
}

func TestIDForLevel(t *testing.T) {
	if IDForLevel(1) != nil {
		t.Fatalf("expected nil badge id below bronze")
	}
	if id := IDForLevel(8); id == nil || *id != Gold {
		t.Fatalf("expected gold id for level 8")
	}
}

func TestShareURLsCarryBadgeName(t *testing.T) {
	b, _ := ByID(Diamond)
	u := TwitterShareURL(&b, 10)
	if !strings.HasPrefix(u, "https://twitter.com/intent/tweet?") {
		t.Fatalf("unexpected share url %q", u)
	}
	if !strings.Contains(u, "AI+Breaker") {
		t.Fatalf("expected badge name in share url, got %q", u)
	}
	if !strings.Contains(ShareText(nil, 2), "a level") {
		t.Fatalf("expected fallback wording without badge")
	}
	if !strings.Contains(LinkedInShareURL(), "breachlab.xsourcesec.com") {
		t.Fatalf("expected site url in linkedin share")
	}
}
