package chess

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

const (
	// StartFEN is the standard initial position.
	StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	// StartPos is the sentinel the platform sends instead of a FEN for standard games.
	StartPos = "startpos"
)

var (
	ErrInvalidPosition = errors.New("invalid initial position")
	ErrIllegalMove     = errors.New("move cannot be applied")
)

// Position is the result of replaying a move list onto an initial position.
type Position struct {
	FEN        string
	Moves      []string
	SAN        []string
	SideToMove Color
}

// SplitMoves turns a space separated move list into its moves.
func SplitMoves(list string) []string {
	return strings.Fields(list)
}

// Reconstruct replays moves (space separated, coordinate notation) onto initial
// and returns the resulting FEN. Any move that cannot be applied is an error
// wrapping ErrIllegalMove; the caller must not continue on a guessed position.
func Reconstruct(initial, moves string) (string, error) {
	game, err := Replay(initial, SplitMoves(moves))
	if err != nil {
		return "", err
	}
	return game.FEN(), nil
}

// Describe replays moves and also reports SAN and the side to move.
func Describe(initial string, moves []string) (Position, error) {
	game, err := Replay(initial, moves)
	if err != nil {
		return Position{}, err
	}
	positions := game.Positions()
	played := game.Moves()
	san := make([]string, len(played))
	notation := nchess.AlgebraicNotation{}
	for i, mv := range played {
		if i < len(positions) {
			san[i] = notation.Encode(positions[i], mv)
		}
	}
	return Position{
		FEN:        game.FEN(),
		Moves:      append([]string(nil), moves...),
		SAN:        san,
		SideToMove: colorFrom(game.Position().Turn()),
	}, nil
}

// Replay builds a game from initial and applies moves strictly in order.
func Replay(initial string, moves []string) (*nchess.Game, error) {
	game, err := newGame(initial)
	if err != nil {
		return nil, err
	}
	uci := nchess.UCINotation{}
	for i, mv := range moves {
		move, err := uci.Decode(game.Position(), mv)
		if err != nil {
			return nil, fmt.Errorf("%w: decode move %d %q: %v", ErrIllegalMove, i+1, mv, err)
		}
		if err := game.Move(move, nil); err != nil {
			return nil, fmt.Errorf("%w: apply move %d %q: %v", ErrIllegalMove, i+1, mv, err)
		}
	}
	return game, nil
}

// OpeningName returns the ECO code and title for the deepest known opening
// reached by moves, or empty strings.
func OpeningName(initial string, moves []string) (string, string) {
	if !isStartPos(initial) || len(moves) == 0 {
		return "", ""
	}
	game, err := Replay(initial, moves)
	if err != nil {
		return "", ""
	}
	book := opening.NewBookECO()
	if book == nil {
		return "", ""
	}
	if eco := book.Find(game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}

func newGame(initial string) (*nchess.Game, error) {
	if isStartPos(initial) {
		return nchess.NewGame(), nil
	}
	opt, err := nchess.FEN(strings.TrimSpace(initial))
	if err != nil {
		return nil, fmt.Errorf("%w: parse fen %q: %v", ErrInvalidPosition, initial, err)
	}
	return nchess.NewGame(opt), nil
}

func isStartPos(initial string) bool {
	s := strings.TrimSpace(initial)
	return s == "" || s == StartPos || s == StartFEN
}
