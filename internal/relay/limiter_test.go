package relay

import "testing"

func TestSenderLimiter_BurstThenRefusal(t *testing.T) {
	limiter := NewSenderLimiter(60, 3)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("u1") {
			t.Fatalf("send %d should fit in the burst", i+1)
		}
	}
	if limiter.Allow("u1") {
		t.Error("fourth immediate send should be refused")
	}
}

func TestSenderLimiter_SendersAreIndependent(t *testing.T) {
	limiter := NewSenderLimiter(60, 1)

	if !limiter.Allow("u1") {
		t.Fatal("u1 first send should pass")
	}
	if limiter.Allow("u1") {
		t.Error("u1 second immediate send should be refused")
	}
	if !limiter.Allow("u2") {
		t.Error("u2 must not be affected by u1's budget")
	}
}

func TestSenderLimiter_ForgetResetsBudget(t *testing.T) {
	limiter := NewSenderLimiter(60, 1)

	limiter.Allow("u1")
	if limiter.Allow("u1") {
		t.Fatal("budget should be exhausted")
	}

	limiter.Forget("u1")
	if !limiter.Allow("u1") {
		t.Error("a forgotten sender starts with a fresh budget")
	}
}

func TestSenderLimiter_DefaultsApplied(t *testing.T) {
	limiter := NewSenderLimiter(0, 0)
	if !limiter.Allow("u1") {
		t.Error("zero-valued construction should fall back to usable defaults")
	}
}
