package model

import "testing"

func TestAppliedKeyUnique(t *testing.T) {
	t.Parallel()

	if got := AppliedKey("j1", "s1"); got != "j1#s1" {
		t.Fatalf("expected j1#s1, got %s", got)
	}
	pairs := [][2]string{{"a#b", "c"}, {"a", "b#c"}, {"a%23b", "c"}, {"a", "%23b#c"}}
	seen := map[string][2]string{}
	for _, p := range pairs {
		key := AppliedKey(p[0], p[1])
		if prev, ok := seen[key]; ok {
			t.Fatalf("expected distinct keys, %v and %v both map to %s", prev, p, key)
		}
		seen[key] = p
	}
}
