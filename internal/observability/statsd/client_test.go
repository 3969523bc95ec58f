package statsd

import (
	"net"
	"strings"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" audit/jobs ":       "audit_jobs",
		"queue..depth":       "queue.depth",
		"major/csci":         "major_csci",
		"compute time":       "compute_time",
		".jobs.claimed.":     "jobs.claimed",
		"":                   "",
		"results/active/set": "results_active_set",
	}

	for input, want := range tests {
		if got := normalizeName(input); got != want {
			t.Fatalf("normalizeName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestQualifyAppliesPrefix(t *testing.T) {
	t.Parallel()

	c := &Client{prefix: "auditcore"}
	if got := c.qualify("jobs/claimed"); got != "auditcore.jobs_claimed" {
		t.Fatalf("qualify = %q", got)
	}

	bare := &Client{}
	if got := bare.qualify("jobs.claimed"); got != "jobs.claimed" {
		t.Fatalf("qualify without prefix = %q", got)
	}
}

func TestRenderTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{
		"env":      "prod",
		" worker ": " w-1 ",
	}
	local := map[string]string{
		"area": "major_csci",
		"":     "dropped",
		"env":  "stage", // per-metric tag wins
	}

	got := renderTags(global, local)
	want := "|#area:major_csci,env:stage,worker:w-1"
	if got != want {
		t.Fatalf("renderTags mismatch\n got: %q\nwant: %q", got, want)
	}

	if got := renderTags(nil, nil); got != "" {
		t.Fatalf("renderTags(nil, nil) = %q, want empty", got)
	}
}

func TestCopyTagsReturnsIndependentMap(t *testing.T) {
	t.Parallel()

	original := map[string]string{"env": "prod", "": "dropped"}

	cloned := copyTags(original)
	cloned["env"] = "stage"
	if original["env"] != "prod" {
		t.Fatal("copyTags shares storage with the original")
	}
	if _, ok := cloned[""]; ok {
		t.Fatal("copyTags kept an empty key")
	}
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{enabled: true, conn: clientConn}
	if !client.Enabled() {
		t.Fatal("client with a live connection should report enabled")
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("client should report disabled after Close")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}

	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatal("nil client should report disabled")
	}
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil client Close error: %v", err)
	}
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Enabled: true, Address: "   "})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if client.Enabled() {
		t.Fatal("client should stay disabled when the address is blank")
	}
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	if err == nil {
		t.Fatal("expected NewClient to error for an unparseable address")
	}
	if !strings.Contains(err.Error(), "statsd dial") {
		t.Fatalf("unexpected error: %v", err)
	}
}
