package hasher_test

import (
	"strings"
	"testing"

	"github.com/artpar/amodule/adapters/hasher"
	"golang.org/x/crypto/bcrypt"
)

func TestBcrypt_HashCompare(t *testing.T) {
	h := hasher.NewBcrypt(bcrypt.MinCost) // min cost for speed in tests

	hash, err := h.Hash("amk_secret")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if len(hash) == 0 || hash[0] != '$' {
		t.Errorf("hash %q is not in bcrypt format", hash)
	}

	if !h.Compare(hash, "amk_secret") {
		t.Error("Compare rejected the original key")
	}
	if h.Compare(hash, "amk_other") {
		t.Error("Compare accepted a different key")
	}
	if h.Compare([]byte("not-a-hash"), "amk_secret") {
		t.Error("Compare accepted a malformed hash")
	}
}

func TestBcrypt_InvalidCostDefaults(t *testing.T) {
	for _, cost := range []int{1, 100} {
		h := hasher.NewBcrypt(cost)
		hash, err := h.Hash("k")
		if err != nil {
			t.Fatalf("cost %d: Hash failed: %v", cost, err)
		}
		got, err := bcrypt.Cost(hash)
		if err != nil {
			t.Fatalf("cost %d: %v", cost, err)
		}
		if got != bcrypt.DefaultCost {
			t.Errorf("cost %d: effective cost = %d, want %d", cost, got, bcrypt.DefaultCost)
		}
	}
}

func TestNewKey(t *testing.T) {
	a, err := hasher.NewKey()
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	b, _ := hasher.NewKey()

	if !strings.HasPrefix(a, hasher.KeyPrefix) {
		t.Errorf("key %q lacks prefix", a)
	}
	if len(a) != len(hasher.KeyPrefix)+48 {
		t.Errorf("key length = %d", len(a))
	}
	if a == b {
		t.Error("two keys are equal")
	}
}

func TestFake(t *testing.T) {
	h := hasher.Fake{}
	hash, _ := h.Hash("key")
	if !h.Compare(hash, "key") || h.Compare(hash, "other") {
		t.Error("Fake compare is not plain equality")
	}
}
