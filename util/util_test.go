package util

import (
	"strings"
	"testing"
)

func TestRandomString(t *testing.T) {
	s1 := RandomString(16)
	if len(s1) != 16 {
		t.Errorf("Expected length 16, got %d", len(s1))
	}

	s2 := RandomString(8)
	if len(s2) != 8 {
		t.Errorf("Expected length 8, got %d", len(s2))
	}
}

func TestNormalizeInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"newlines replaced", "hello\nworld", "hello world"},
		{"html escaped", "<b>bold</b>", "&lt;b&gt;bold&lt;/b&gt;"},
		{"plain text untouched", "just text", "just text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeInput(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeInput(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParseHandle(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantUser   string
		wantDomain string
	}{
		{"full handle with at", "@alice@example.com", "alice", "example.com"},
		{"full handle without at", "alice@example.com", "alice", "example.com"},
		{"bare username", "alice", "alice", ""},
		{"bare username with at", "@alice", "alice", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, domain := ParseHandle(tt.input)
			if user != tt.wantUser || domain != tt.wantDomain {
				t.Errorf("ParseHandle(%q) = (%q, %q), want (%q, %q)",
					tt.input, user, domain, tt.wantUser, tt.wantDomain)
			}
		})
	}
}

func TestGeneratePemKeypair(t *testing.T) {
	keypair := GeneratePemKeypair()

	if !strings.Contains(keypair.Private, "BEGIN RSA PRIVATE KEY") {
		t.Error("Private key should be PEM encoded")
	}
	if !strings.Contains(keypair.Public, "BEGIN PUBLIC KEY") {
		t.Error("Public key should be PEM encoded")
	}
}

func TestMarkdownLinksToHTML(t *testing.T) {
	input := "check [this](https://example.com) out"
	result := MarkdownLinksToHTML(input)

	if !strings.Contains(result, `<a href="https://example.com"`) {
		t.Errorf("Expected anchor tag in result, got %q", result)
	}
	if !strings.Contains(result, ">this</a>") {
		t.Errorf("Expected link text in result, got %q", result)
	}
}

func TestExtractMarkdownLinks(t *testing.T) {
	input := "[one](https://a.example) and [two](https://b.example)"
	urls := ExtractMarkdownLinks(input)

	if len(urls) != 2 {
		t.Fatalf("Expected 2 URLs, got %d", len(urls))
	}
	if urls[0] != "https://a.example" || urls[1] != "https://b.example" {
		t.Errorf("Unexpected URLs: %v", urls)
	}
}
