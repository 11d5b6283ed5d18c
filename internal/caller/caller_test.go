package caller

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "phone_numbers.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRejectsMalformedNumber(t *testing.T) {
	path := writeTempYAML(t, `
mainAccount:
  enabled: true
  numbers:
    - enabled: true
      number: 123
`)
	if _, err := Load(path, "+10000000000", "AC123", "token"); err == nil {
		t.Fatal("expected error for non-11-digit number")
	}
}

func TestLoadAcceptsValidAccounts(t *testing.T) {
	path := writeTempYAML(t, `
mainAccount:
  enabled: true
  numbers:
    - enabled: true
      number: 12025550123
    - enabled: false
      number: 12025550124
disabledAccount:
  enabled: false
  numbers:
    - enabled: true
      number: 12025550199
`)
	c, err := Load(path, "+10000000000", "AC123", "token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.accounts) != 1 {
		t.Fatalf("expected 1 enabled account, got %d", len(c.accounts))
	}
	acc := c.accounts[0]
	if len(acc.Numbers) != 2 {
		t.Fatalf("expected disabled number still present per original quirk, got %d", len(acc.Numbers))
	}
	if acc.Numbers[0].E164 != "+12025550123" {
		t.Errorf("E164 = %s", acc.Numbers[0].E164)
	}
}
