package deploy

import (
	"strings"
	"testing"
)

// FullDeploy itself talks over a live SSH session and isn't exercised here;
// the pieces below are the pure functions it's built from.

func TestRenderUnitFile_EnforcesMinRestartSec(t *testing.T) {
	content := RenderUnitFile("web-01", "/opt/fleet", "/opt/fleet/agent", 2)
	if !strings.Contains(content, "RestartSec=10") {
		t.Fatalf("expected RestartSec floor of 10, got:\n%s", content)
	}
	if !strings.Contains(content, "Restart=always") {
		t.Fatal("expected Restart=always")
	}
	if !strings.Contains(content, "StandardOutput=append:/opt/fleet/logs/stdout.log") {
		t.Fatal("expected stdout redirected under logs/")
	}
}

func TestUnitFileName(t *testing.T) {
	if got := UnitFileName("web-01"); got != "nocturne-fleet-web-01.service" {
		t.Fatalf("unexpected unit name: %s", got)
	}
}

func TestChecksumBytes_Deterministic(t *testing.T) {
	a := ChecksumBytes([]byte("hello"))
	b := ChecksumBytes([]byte("hello"))
	c := ChecksumBytes([]byte("world"))
	if a != b {
		t.Fatal("expected identical content to checksum identically")
	}
	if a == c {
		t.Fatal("expected different content to checksum differently")
	}
}

func TestShellQuote_EscapesSingleQuotes(t *testing.T) {
	got := shellQuote("it's a path")
	want := `'it'\''s a path'`
	if got != want {
		t.Fatalf("shellQuote = %q, want %q", got, want)
	}
}

func TestPosixDir(t *testing.T) {
	cases := map[string]string{
		"/opt/fleet/agent":  "/opt/fleet",
		"/opt/agent":        "/opt",
		"/agent":            "/",
		"noleadingslash.go": "/",
	}
	for in, want := range cases {
		if got := posixDir(in); got != want {
			t.Errorf("posixDir(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildParityShards_ProducesHalfAsManyParityShards(t *testing.T) {
	data := [][]byte{
		[]byte("config one"),
		[]byte("config two, a bit longer"),
		[]byte("c3"),
	}
	parity, err := buildParityShards(data)
	if err != nil {
		t.Fatalf("buildParityShards: %v", err)
	}
	if len(parity) != 2 {
		t.Fatalf("expected 2 parity shards for 3 data shards, got %d", len(parity))
	}
	for _, p := range parity {
		if len(p) != len(parity[0]) {
			t.Fatal("expected all parity shards to share the padded length")
		}
	}
}

func TestBuildParityShards_RejectsSingleFile(t *testing.T) {
	if _, err := buildParityShards([][]byte{[]byte("only one")}); err == nil {
		t.Fatal("expected error for fewer than 2 data shards")
	}
}

func TestKindOf_UnwrapsDeployError(t *testing.T) {
	err := NewError(KindAuthFailed, nil)
	if KindOf(err) != KindAuthFailed {
		t.Fatalf("KindOf = %v, want AuthFailed", KindOf(err))
	}
}
