package security

import (
	"strings"
	"testing"
)

func TestFieldCipher(t *testing.T) {
	c, err := NewFieldCipher("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewFieldCipher: %v", err)
	}

	t.Run("seal then open", func(t *testing.T) {
		sealed, err := c.Seal("prefers short answers")
		if err != nil {
			t.Fatalf("Seal: %v", err)
		}
		if !strings.HasPrefix(sealed, sealedPrefix) || strings.Contains(sealed, "short answers") {
			t.Fatalf("unexpected sealed value %q", sealed)
		}
		got, err := c.Open(sealed)
		if err != nil || got != "prefers short answers" {
			t.Fatalf("Open = %q, %v", got, err)
		}
	})

	t.Run("legacy plaintext passes through", func(t *testing.T) {
		got, err := c.Open("plain note")
		if err != nil || got != "plain note" {
			t.Fatalf("Open = %q, %v", got, err)
		}
	})

	t.Run("tampered value fails", func(t *testing.T) {
		sealed, _ := c.Seal("x")
		if _, err := c.Open(sealed[:len(sealed)-4] + "AAAA"); err == nil {
			t.Fatal("expected tamper detection")
		}
	})

	t.Run("bad key length", func(t *testing.T) {
		if _, err := NewFieldCipher("short"); err == nil {
			t.Fatal("expected error for short key")
		}
	})
}
