package version

import "testing"

func TestString(t *testing.T) {
	defer func(v, g, b string) { Version, GitSHA, BuildTime = v, g, b }(Version, GitSHA, BuildTime)

	Version, GitSHA, BuildTime = "1.4.0", "abc1234", "2024-06-01T10:00:00Z"
	got := String()
	want := "1.4.0 (abc1234, built 2024-06-01T10:00:00Z)"
	if got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestStringDefaults(t *testing.T) {
	// Without stamped values the banner still renders; the SHA may come
	// from the toolchain's VCS stamp, so only the shape is checked.
	got := String()
	if got == "" {
		t.Fatal("String() is empty")
	}
}
