package chess

import (
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Color is the side a bot plays in one game.
type Color uint8

const (
	NoColor Color = iota
	White
	Black
)

func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Black:
		return "black"
	default:
		return "none"
	}
}

// Opposite returns the other side, NoColor stays NoColor.
func (c Color) Opposite() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	default:
		return NoColor
	}
}

func ParseColor(s string) Color {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White
	case "black", "b":
		return Black
	default:
		return NoColor
	}
}

// SideToMove reports who moves after moveCount moves from the standard start.
func SideToMove(moveCount int) Color {
	if moveCount%2 == 0 {
		return White
	}
	return Black
}

// IsMyTurn is true only when assigned is the side implied by moveCount.
func IsMyTurn(assigned Color, moveCount int) bool {
	if moveCount < 0 || assigned == NoColor {
		return false
	}
	return SideToMove(moveCount) == assigned
}

func colorFrom(c nchess.Color) Color {
	switch c {
	case nchess.White:
		return White
	case nchess.Black:
		return Black
	default:
		return NoColor
	}
}

// MoveCountOffset is 1 when initial has black to move, so the parity rule of
// IsMyTurn also holds for games set up from a custom position.
func MoveCountOffset(initial string) int {
	if isStartPos(initial) {
		return 0
	}
	if f := strings.Fields(initial); len(f) > 1 && f[1] == "b" {
		return 1
	}
	return 0
}
