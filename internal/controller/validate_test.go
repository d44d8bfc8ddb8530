package controller

import "testing"

func TestValidateResponse_CapsSentences(t *testing.T) {
	in := "One. Two. Three. Four. Five."
	got := ValidateResponse(in, 3)
	if got != "One. Two. Three." {
		t.Fatalf("expected three sentences, got %q", got)
	}
	if got := ValidateResponse(in, 2); got != "One. Two." {
		t.Fatalf("expected two sentences, got %q", got)
	}
}

func TestValidateResponse_HardCapIsThree(t *testing.T) {
	in := "One. Two. Three. Four. Five."
	if got := ValidateResponse(in, 10); got != "One. Two. Three." {
		t.Fatalf("limit above the cap must still trim to three, got %q", got)
	}
	if got := ValidateResponse(in, 0); got != "One. Two. Three." {
		t.Fatalf("invalid limit must fall back to the cap, got %q", got)
	}
}

func TestValidateResponse_BreaksCompoundConnectors(t *testing.T) {
	got := ValidateResponse("Pick up the block, and then put it down.", 3)
	if got != "Pick up the block. put it down." {
		t.Fatalf("', and then' must become a sentence break, got %q", got)
	}
	got = ValidateResponse("Count to three, then clap.", 3)
	if got != "Count to three. clap." {
		t.Fatalf("', then' must become a sentence break, got %q", got)
	}
}

func TestValidateResponse_TruncatesPastSecondComma(t *testing.T) {
	got := ValidateResponse("We can sing, dance, jump, spin, and wave.", 3)
	if got != "We can sing, dance, jump." {
		t.Fatalf("complex clause must truncate at the second comma, got %q", got)
	}
}

func TestValidateResponse_SimpleTextUntouched(t *testing.T) {
	in := "You did it! Great job."
	if got := ValidateResponse(in, 3); got != in {
		t.Fatalf("simple reply must pass unchanged, got %q", got)
	}
	if got := ValidateResponse("   ", 3); got != "   " {
		t.Fatalf("blank input must pass through, got %q", got)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Hello! How are you? I am fine.\nGood.")
	want := []string{"Hello!", "How are you?", "I am fine.", "Good."}
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chunk %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
