package password_test

import (
	"strings"
	"testing"

	"github.com/dropDatabas3/gatejohn/internal/security/password"
)

func TestHashAndVerify(t *testing.T) {
	phc, err := password.Hash(password.Default, "s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$v=19$") {
		t.Fatalf("unexpected PHC format: %q", phc)
	}
	if !password.Verify("s3cret", phc) {
		t.Fatal("correct password rejected")
	}
	if password.Verify("wrong", phc) {
		t.Fatal("wrong password accepted")
	}
}

func TestHashIsSalted(t *testing.T) {
	a, err := password.Hash(password.Default, "same")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := password.Hash(password.Default, "same")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same password are identical")
	}
	if !password.Verify("same", a) || !password.Verify("same", b) {
		t.Fatal("salted hashes do not verify")
	}
}

func TestVerifyMalformed(t *testing.T) {
	cases := []string{
		"",
		"notaphc",
		"$argon2id$v=19$m=65536,t=3,p=1$onlysalt",
		"$argon2i$v=19$m=65536,t=3,p=1$c2FsdA$ZGs",
		"$argon2id$v=19$garbage$c2FsdA$ZGs",
		"$argon2id$v=19$m=65536,t=3,p=1$!!!$ZGs",
	}
	for _, phc := range cases {
		if password.Verify("anything", phc) {
			t.Fatalf("malformed hash accepted: %q", phc)
		}
	}
}
