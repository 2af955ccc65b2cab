package chess

import "testing"

func TestIsMyTurnParity(t *testing.T) {
	for n := 0; n <= 200; n++ {
		if got := IsMyTurn(White, n); got != (n%2 == 0) {
			t.Fatalf("IsMyTurn(white, %d) = %v", n, got)
		}
		if got := IsMyTurn(Black, n); got != (n%2 == 1) {
			t.Fatalf("IsMyTurn(black, %d) = %v", n, got)
		}
		if IsMyTurn(NoColor, n) {
			t.Fatalf("unassigned color must never move")
		}
	}
}

func TestIsMyTurnScenarios(t *testing.T) {
	if !IsMyTurn(White, 0) {
		t.Fatalf("white moves first")
	}
	moves := SplitMoves("e2e4 e7e5")
	if IsMyTurn(Black, len(moves)) {
		t.Fatalf("after two moves it is white to move")
	}
}

func TestParseColor(t *testing.T) {
	cases := map[string]Color{"white": White, " Black ": Black, "b": Black, "": NoColor, "random": NoColor}
	for in, want := range cases {
		if got := ParseColor(in); got != want {
			t.Fatalf("ParseColor(%q) = %s, want %s", in, got, want)
		}
	}
	if White.Opposite() != Black || NoColor.Opposite() != NoColor {
		t.Fatalf("unexpected opposite")
	}
}

func TestMoveCountOffset(t *testing.T) {
	cases := map[string]int{
		"":                                0,
		StartPos:                          0,
		StartFEN:                          0,
		"4k3/8/8/8/8/8/4P3/4K3 w - - 0 1": 0,
		"4k3/4p3/8/8/8/8/8/4K3 b - - 0 1": 1,
	}
	for fen, want := range cases {
		if got := MoveCountOffset(fen); got != want {
			t.Fatalf("MoveCountOffset(%q) = %d, want %d", fen, got, want)
		}
	}
}
