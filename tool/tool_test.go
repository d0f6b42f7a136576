package tool

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMarkdownToHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"plain text", "plain text"},
		{"*bold*", "<b>bold</b>"},
		{"_italic_", "<i>italic</i>"},
		{"`code`", "<code>code</code>"},
		{"[go](https://go.dev)", `<a href="https://go.dev">go</a>`},
		{"**kept**", "**kept**"},
		{"__kept__", "__kept__"},
		{"*a* then _b_ and `c`", "<b>a</b> then <i>b</i> and <code>c</code>"},
		{"see [docs](https://x.y) for *more*", `see <a href="https://x.y">docs</a> for <b>more</b>`},
	}
	for _, tt := range tests {
		if got := MarkdownToHTML(tt.in); got != tt.want {
			t.Fatalf("MarkdownToHTML(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeDigits(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"١٢٣", "123"},
		{"42", "42"},
		{"دفعة ٧", "دفعة 7"},
		{"٠٩", "09"},
	}
	for _, tt := range tests {
		if got := NormalizeDigits(tt.in); got != tt.want {
			t.Fatalf("NormalizeDigits(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestDispatchJob(t *testing.T) {
	var got map[string]int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("cannot unmarshal payload: %v", err)
		}
	}))
	defer srv.Close()

	if err := DispatchJob(srv.URL, 7); err != nil {
		t.Fatalf("DispatchJob: %v", err)
	}
	if got["jobId"] != 7 {
		t.Fatalf("payload jobId = %d; want 7", got["jobId"])
	}
}

func TestDispatchJobErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := DispatchJob(srv.URL, 1); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
