package entities

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFilePath(t *testing.T) {
	got := Extract("please check /home/user/proj/main.go for the bug")
	assertHasEntity(t, got, "file_path", "/home/user/proj/main.go")
}

func TestExtractFunction(t *testing.T) {
	got := Extract("def parse_session(path): pass")
	assertHasEntity(t, got, "function", "parse_session")
}

func TestExtractErrorTypeSuffixWildcardOnly(t *testing.T) {
	got := Extract("got a KeyError: 'missing_field' while parsing")
	assertHasEntity(t, got, "error_type", "KeyError:")
}

func TestExtractPackage(t *testing.T) {
	got := Extract("import requests\nfrom typing import Any")
	assertHasEntity(t, got, "package", "requests")
	assertNoEntity(t, got, "package", "typing")
}

func TestExtractCommand(t *testing.T) {
	got := Extract("$ go test ./...\nsome output here")
	assertHasEntity(t, got, "command", "go test ./...")
}

func TestExtractIgnoresGenericValues(t *testing.T) {
	got := Extract("def main(): pass\ndef self(): pass")
	assertNoEntity(t, got, "function", "main")
	assertNoEntity(t, got, "function", "self")
}

func TestExtractDedupsWithinCall(t *testing.T) {
	got := Extract("/tmp/foo.txt and again /tmp/foo.txt")
	count := 0
	for _, e := range got {
		if e.EntityType == "file_path" && e.Value == "/tmp/foo.txt" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestExtractContextSnippetBounds(t *testing.T) {
	got := Extract("x")
	assert.Empty(t, got)

	// Near both ends of the text the window is clamped to the text itself.
	got = Extract("see /a/b.go now")
	if assert.Len(t, got, 1) {
		assert.Equal(t, "see /a/b.go now", got[0].Context)
	}

	// Otherwise it spans 50 bytes either side of the whole match, including
	// the delimiter before the path.
	got = Extract(strings.Repeat("a", 60) + " /x/y.go " + strings.Repeat("b", 60))
	if assert.Len(t, got, 1) {
		assert.Equal(t, strings.Repeat("a", 50)+" /x/y.go "+strings.Repeat("b", 49), got[0].Context)
	}
}

func assertHasEntity(t *testing.T, got []Extracted, entityType, value string) {
	t.Helper()
	for _, e := range got {
		if e.EntityType == entityType && e.Value == value {
			return
		}
	}
	t.Fatalf("expected entity %s/%s in %+v", entityType, value, got)
}

func assertNoEntity(t *testing.T, got []Extracted, entityType, value string) {
	t.Helper()
	for _, e := range got {
		if e.EntityType == entityType && e.Value == value {
			t.Fatalf("unexpected entity %s/%s in %+v", entityType, value, got)
		}
	}
}
