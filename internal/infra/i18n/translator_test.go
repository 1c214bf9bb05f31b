//go:build !integration

package i18n

import (
	"sort"
	"testing"
	"testing/fstest"
)

func TestTranslator(t *testing.T) {
	translator, err := newTranslatorFromBytes([]byte("greeting: سلام\nwelcome_user: سلام %s"))
	if err != nil {
		t.Fatalf("newTranslatorFromBytes failed: %v", err)
	}

	t.Run("should translate a simple key", func(t *testing.T) {
		if got := translator.T("greeting"); got != "سلام" {
			t.Errorf("wanted 'سلام', got '%s'", got)
		}
	})

	t.Run("should return key if not found", func(t *testing.T) {
		if got := translator.T("nonexistent_key"); got != "nonexistent_key" {
			t.Errorf("wanted 'nonexistent_key', got '%s'", got)
		}
	})

	t.Run("should format arguments correctly", func(t *testing.T) {
		if got := translator.T("welcome_user", "Ali"); got != "سلام Ali" {
			t.Errorf("wanted 'سلام Ali', got '%s'", got)
		}
	})
}

func TestNewTranslator_FromFS(t *testing.T) {
	fsys := fstest.MapFS{"locales/de.yaml": {Data: []byte("notice.failed: Leider nicht.")}}
	tr, err := NewTranslator(fsys, "de")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Lang() != "de" || tr.T("notice.failed") != "Leider nicht." {
		t.Fatalf("unexpected catalog %q: %q", tr.Lang(), tr.T("notice.failed"))
	}
	if _, err := NewTranslator(fsys, "xx"); err == nil {
		t.Fatal("expected error for missing locale")
	}
}

func TestEmbeddedLocalesAreComplete(t *testing.T) {
	en := Default()
	if en.Lang() != DefaultLang {
		t.Fatalf("default lang = %q", en.Lang())
	}
	want := en.Keys()
	sort.Strings(want)
	if len(want) == 0 {
		t.Fatal("english catalog is empty")
	}

	fa, err := Load("fa")
	if err != nil {
		t.Fatalf("Load(fa): %v", err)
	}
	for _, k := range want {
		if fa.T(k) == k {
			t.Errorf("fa is missing %q", k)
		}
	}
	if got := en.T("usage.footer.warning", 80, 100, "Feb 1"); got != "_You have used 80 of 100 suggestions this period (resets Feb 1)._" {
		t.Errorf("warning footer = %q", got)
	}
}
