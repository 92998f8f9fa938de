package types

import "testing"

func TestArchiveBundleNameRoundTrip(t *testing.T) {
	name := GetArchiveBundleName(100, 199)
	if name != "blocks_s100_e199" {
		t.Fatalf("unexpected bundle name %s", name)
	}
	start, end, err := ParseArchiveBundleName(name)
	if err != nil {
		t.Fatal(err)
	}
	if start != 100 || end != 199 {
		t.Fatalf("round trip lost heights: %d %d", start, end)
	}
}

func TestParseArchiveBundleNameInvalid(t *testing.T) {
	for _, name := range []string{"", "blocks", "blocks_s1", "blocks_sx_e2", "blocks_s1_ey"} {
		if _, _, err := ParseArchiveBundleName(name); err == nil {
			t.Fatalf("expected error for %q", name)
		}
	}
}

func TestGetPayloadName(t *testing.T) {
	if got := GetPayloadName(42, "ab12"); got != "payload_h42_ab12" {
		t.Fatalf("unexpected payload name %s", got)
	}
}
