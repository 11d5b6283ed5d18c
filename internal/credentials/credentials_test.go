package credentials

import (
	"errors"
	"testing"

	"listing-sniper/internal/common"
)

func TestCheckUniqueRejectsDuplicates(t *testing.T) {
	creds := []common.Credential{
		{ExchangeName: "binance", APIKey: "k1", APISecret: "s1"},
		{ExchangeName: "binance", APIKey: "k1", APISecret: "s1"},
	}
	_, err := CheckUnique(creds)
	var notUnique *ErrNotUnique
	if !errors.As(err, &notUnique) {
		t.Fatalf("expected ErrNotUnique, got %v", err)
	}
}

func TestCheckUniqueAcceptsDistinct(t *testing.T) {
	creds := []common.Credential{
		{ExchangeName: "binance", APIKey: "k1", APISecret: "s1"},
		{ExchangeName: "bittrex", APIKey: "k1", APISecret: "s1"},
		{ExchangeName: "binance", APIKey: "k2", APISecret: "s1"},
	}
	got, err := CheckUnique(creds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(creds) {
		t.Errorf("len = %d, want %d", len(got), len(creds))
	}
}
