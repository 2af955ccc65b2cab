package openingbook

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	chesslib "github.com/corentings/chess/v2"
)

const defaultMaxPly = 12

type Result struct {
	Move   string
	Weight uint16
}

// Book answers opening moves from a Polyglot book. It is safe for concurrent use.
type Book struct {
	book   *chesslib.PolyglotBook
	maxPly int

	randMu sync.Mutex
	rand   *rand.Rand
}

// Open loads the Polyglot book at path. maxPly limits how deep into the game
// the book is consulted.
func Open(path string, maxPly int) (*Book, error) {
	book, err := LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	return New(book, maxPly, time.Now().UnixNano()), nil
}

func New(book *chesslib.PolyglotBook, maxPly int, seed int64) *Book {
	if maxPly <= 0 {
		maxPly = defaultMaxPly
	}
	return &Book{
		book:   book,
		maxPly: maxPly,
		rand:   rand.New(rand.NewSource(seed)),
	}
}

func (b *Book) MaxPly() int { return b.maxPly }

// Lookup picks a weighted random book move for fen, ply moves into the game.
// ok is false past MaxPly or when the position is not in the book.
func (b *Book) Lookup(fen string, ply int) (Result, bool, error) {
	if b == nil || b.book == nil || ply >= b.maxPly {
		return Result{}, false, nil
	}
	entries, err := b.Entries(fen)
	if err != nil || len(entries) == 0 {
		return Result{}, false, err
	}
	b.randMu.Lock()
	roll := b.rand.Int63()
	b.randMu.Unlock()
	picked, ok := pickWeighted(entries, roll)
	return picked, ok, nil
}

// Entries lists every book move for fen that is legal in that position.
func (b *Book) Entries(fen string) ([]Result, error) {
	if b == nil || b.book == nil {
		return nil, nil
	}
	game, err := buildGameFromPosition(fen, nil)
	if err != nil {
		return nil, err
	}

	hasher := chesslib.NewZobristHasher()
	hashStr, err := hasher.HashPosition(game.FEN())
	if err != nil {
		return nil, fmt.Errorf("compute polyglot hash: %w", err)
	}

	hash := chesslib.ZobristHashToUint64(hashStr)
	entries := b.book.FindMoves(hash)
	if len(entries) == 0 {
		return nil, nil
	}

	out := make([]Result, 0, len(entries))
	for _, entry := range entries {
		move := chesslib.DecodeMove(entry.Move).ToMove()
		uciMove := move.String()
		if _, err := buildGameFromPosition(fen, []string{uciMove}); err != nil {
			continue
		}
		out = append(out, Result{Move: uciMove, Weight: entry.Weight})
	}
	return out, nil
}

// pickWeighted selects an entry with probability proportional to its weight.
// Zero-weight entries are never picked.
func pickWeighted(entries []Result, roll int64) (Result, bool) {
	var total int64
	for _, e := range entries {
		total += int64(e.Weight)
	}
	if total <= 0 {
		return Result{}, false
	}
	if roll < 0 {
		roll = -roll
	}
	target := roll % total
	for _, e := range entries {
		w := int64(e.Weight)
		if target < w {
			return e, true
		}
		target -= w
	}
	return entries[0], true
}

func buildGameFromPosition(fen string, moves []string) (*chesslib.Game, error) {
	var (
		game *chesslib.Game
		err  error
	)

	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		game = chesslib.NewGame()
	} else {
		var option func(*chesslib.Game)
		option, err = chesslib.FEN(fen)
		if err != nil {
			return nil, fmt.Errorf("parse fen %q: %w", fen, err)
		}
		game = chesslib.NewGame(option)
	}

	for _, mv := range moves {
		if err := game.PushNotationMove(mv, chesslib.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("apply move %q: %w", mv, err)
		}
	}
	return game, nil
}

func LoadFromPath(bookPath string) (*chesslib.PolyglotBook, error) {
	if strings.TrimSpace(bookPath) == "" {
		return nil, fmt.Errorf("polyglot book path required")
	}
	file, err := os.Open(bookPath)
	if err != nil {
		return nil, fmt.Errorf("open polyglot book %q: %w", bookPath, err)
	}
	defer file.Close()

	book, err := chesslib.LoadFromReader(file)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book %q: %w", bookPath, err)
	}
	return book, nil
}
