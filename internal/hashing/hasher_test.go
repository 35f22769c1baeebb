package hashing

import (
	"strings"
	"testing"
)

func TestNormalizeIdentity(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  A@B.Com ", "a@b.com"},
		{"user@example.com", "user@example.com"},
		{"\tUSER@EXAMPLE.COM\n", "user@example.com"},
		{"ﬀ@example.com", "ff@example.com"}, // NFKC folds the ligature
	}
	for _, c := range cases {
		if got := NormalizeIdentity(c.in); got != c.want {
			t.Errorf("NormalizeIdentity(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestKeyedHash_DeterministicAndKeyed(t *testing.T) {
	h1 := NewHasher("secret-one-secret-one-secret-one")
	h2 := NewHasher("secret-two-secret-two-secret-two")

	a := h1.KeyedHash("a@b.com")
	if a != h1.KeyedHash("a@b.com") {
		t.Fatal("keyed hash must be deterministic for the same secret")
	}
	if a == h2.KeyedHash("a@b.com") {
		t.Fatal("different secrets must yield different digests")
	}
	if strings.ContainsAny(a, "+/=") {
		t.Fatalf("digest %q is not unpadded base64url", a)
	}
}

func TestDerive_PurposeSeparation(t *testing.T) {
	h := NewHasher("secret-one-secret-one-secret-one")
	if h.Derive("ip", "10.0.0.1") == h.Derive("ua", "10.0.0.1") {
		t.Fatal("identical values under different purposes must not collide")
	}
}

func TestOTPHash_BoundToChallenge(t *testing.T) {
	h := NewHasher("secret-one-secret-one-secret-one")
	digest := h.OTPHash("123456", "challenge-a")
	if !h.VerifyOTPHash("123456", "challenge-a", digest) {
		t.Fatal("matching OTP and challenge must verify")
	}
	if h.VerifyOTPHash("123456", "challenge-b", digest) {
		t.Fatal("OTP hash must not verify against a different challenge")
	}
	if h.VerifyOTPHash("654321", "challenge-a", digest) {
		t.Fatal("wrong OTP must not verify")
	}
}

func TestRandomOTP_Format(t *testing.T) {
	sawLeadingZero := false
	for i := 0; i < 2000; i++ {
		otp, err := RandomOTP()
		if err != nil {
			t.Fatalf("RandomOTP: %v", err)
		}
		if len(otp) != 6 {
			t.Fatalf("OTP %q is not 6 digits", otp)
		}
		for _, r := range otp {
			if r < '0' || r > '9' {
				t.Fatalf("OTP %q contains non-digit", otp)
			}
		}
		if otp[0] == '0' {
			sawLeadingZero = true
		}
	}
	if !sawLeadingZero {
		t.Fatal("2000 draws without a leading zero suggests a biased generator")
	}
}

func TestRandomToken_EntropyAndUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := RandomToken()
		if err != nil {
			t.Fatalf("RandomToken: %v", err)
		}
		// 32 bytes -> 43 base64url characters.
		if len(tok) != 43 {
			t.Fatalf("token length %d, want 43", len(tok))
		}
		if seen[tok] {
			t.Fatal("duplicate token generated")
		}
		seen[tok] = true
	}
}
