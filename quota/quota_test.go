package quota

import "testing"

func TestTokensRequired(t *testing.T) {
	cases := []struct {
		name  string
		pages int
		words int
		want  int
	}{
		{"one page few words", 1, 50, 2},
		{"ten pages dense", 10, 1200, 22},
		{"huge document caps at 100", 200, 50000, 100},
		{"empty floors at 1", 0, 0, 1},
		{"words round up", 1, 101, 3},
		{"exact hundred", 1, 100, 2},
		{"negative inputs clamp", -5, -10, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TokensRequired(tc.pages, tc.words)
			if got != tc.want {
				t.Fatalf("TokensRequired(%d, %d) = %d, want %d", tc.pages, tc.words, got, tc.want)
			}
		})
	}
}

func TestTokensRequiredBounds(t *testing.T) {
	for pages := 0; pages <= 300; pages += 7 {
		for words := 0; words <= 60000; words += 1111 {
			got := TokensRequired(pages, words)
			if got < 1 || got > 100 {
				t.Fatalf("TokensRequired(%d, %d) = %d out of [1,100]", pages, words, got)
			}
		}
	}
}

func TestHasSufficientTokens(t *testing.T) {
	if !HasSufficientTokens(10, 10) {
		t.Fatal("exact balance should be sufficient")
	}
	if HasSufficientTokens(9, 10) {
		t.Fatal("short balance should be insufficient")
	}
}

func TestShortfall(t *testing.T) {
	if got := Shortfall(3, 10); got != 7 {
		t.Fatalf("Shortfall(3, 10) = %d, want 7", got)
	}
	if got := Shortfall(15, 10); got != 0 {
		t.Fatalf("Shortfall(15, 10) = %d, want 0", got)
	}
}
