package fetch

import (
	"net/url"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestHostGuard_RejectsLocalTargets(t *testing.T) {
	g := NewHostGuard(nil, false)

	for _, raw := range []string{
		"http://localhost/img.png",
		"http://127.0.0.1:8080/img.png",
		"http://[::1]/img.png",
		"http://10.0.0.5/img.png",
		"http://192.168.1.20/img.png",
		"http://169.254.169.254/latest/meta-data",
	} {
		if err := g.Check(mustParse(t, raw)); err == nil {
			t.Fatalf("%s should be rejected", raw)
		}
	}
}

func TestHostGuard_RejectsNonHTTPSchemes(t *testing.T) {
	g := NewHostGuard(nil, true)
	if err := g.Check(mustParse(t, "file:///etc/passwd")); err == nil {
		t.Fatal("file scheme should be rejected")
	}
	if err := g.Check(mustParse(t, "ftp://upstream.example/x.png")); err == nil {
		t.Fatal("ftp scheme should be rejected")
	}
}

func TestHostGuard_AllowList(t *testing.T) {
	g := NewHostGuard([]string{"nylottery.ny.gov"}, true)

	if err := g.Check(mustParse(t, "https://nylottery.ny.gov/img/42.png")); err != nil {
		t.Fatalf("allowed host rejected: %v", err)
	}
	if err := g.Check(mustParse(t, "https://evil.example.com/img/42.png")); err == nil {
		t.Fatal("host outside allow list should be rejected")
	}
}

func TestHostGuard_AllowPrivateForDev(t *testing.T) {
	g := NewHostGuard(nil, true)
	if err := g.Check(mustParse(t, "http://127.0.0.1:9999/x.png")); err != nil {
		t.Fatalf("allowPrivate should permit loopback: %v", err)
	}
}
