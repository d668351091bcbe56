package urlnorm

import "testing"

func TestNormalizeIdempotent(t *testing.T) {
	cases := []string{
		"HTTP://Example.COM:80/path/?b=2&a=1&utm_source=newsletter#frag",
		"https://example.com/",
		"https://example.com/a/b/c?z=1&y=2",
		"https://EXAMPLE.com:443/Foo",
	}
	for _, raw := range cases {
		first, err := Normalize(raw, PolicyStrip)
		if err != nil {
			t.Fatalf("Normalize(%q) error: %v", raw, err)
		}
		second, err := Normalize(first, PolicyStrip)
		if err != nil {
			t.Fatalf("Normalize(%q) (second pass) error: %v", first, err)
		}
		if first != second {
			t.Errorf("normalize not idempotent: Normalize(%q)=%q, Normalize(that)=%q", raw, first, second)
		}
	}
}

func TestNormalizeStripsTrackingParams(t *testing.T) {
	got, err := Normalize("https://example.com/path?utm_source=x&keep=1", PolicyStrip)
	if err != nil {
		t.Fatal(err)
	}
	want := "https://example.com/path?keep=1"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeKeepsDefaultPortElided(t *testing.T) {
	got, err := Normalize("https://example.com:443/path", PolicyKeep)
	if err != nil {
		t.Fatal(err)
	}
	want := "https://example.com/path"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeDropsFragment(t *testing.T) {
	got, err := Normalize("https://example.com/path#section", PolicyKeep)
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://example.com/path" {
		t.Errorf("fragment not dropped: %q", got)
	}
}

func TestNormalizeSortsQueryParams(t *testing.T) {
	got, err := Normalize("https://example.com/?b=2&a=1", PolicyKeep)
	if err != nil {
		t.Fatal(err)
	}
	want := "https://example.com/?a=1&b=2"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveRelative(t *testing.T) {
	got, err := Resolve("https://example.com/a/b/", "../c")
	if err != nil {
		t.Fatal(err)
	}
	want := "https://example.com/a/c"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
