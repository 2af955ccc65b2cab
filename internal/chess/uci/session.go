package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/park285/Cheese-Lichess-bot/internal/obslog"
	"go.uber.org/zap"
)

const (
	defaultReadyTimeout  = 4 * time.Second
	defaultStopGrace     = 750 * time.Millisecond
	newGameRetryAttempts = 3
	newGameRetryDelay    = 150 * time.Millisecond
	mateScore            = 30000
)

var (
	ErrEngineExited  = errors.New("engine process exited")
	ErrSearchTimeout = errors.New("engine search timed out")
)

type Options struct {
	Threads int
	HashMB  int
	MultiPV int
}

type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

// Candidate is one principal variation reported by the engine.
type Candidate struct {
	Move      string
	EvalCP    int
	Mate      int
	Principal []string
}

// Info is the last search statistics line seen before bestmove.
type Info struct {
	Depth  int
	Nodes  int64
	NPS    int64
	TimeMs int64
}

type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	done   chan struct{}
	quit   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	search sync.Mutex

	readErr error
	options map[string]struct{}
}

func NewSession(ctx context.Context, binaryPath string, opt Options) (*Session, error) {
	if err := validateOptions(opt); err != nil {
		return nil, err
	}

	// the process outlives ctx; Close stops it
	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := &Session{
		cmd:     cmd,
		stdin:   stdin,
		lines:   make(chan string, 256),
		done:    make(chan struct{}),
		quit:    make(chan struct{}),
		options: make(map[string]struct{}),
	}
	go s.pump(bufio.NewReader(stdoutPipe))

	if err := s.initialize(ctx, opt); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

type SearchRequest struct {
	FEN    string
	Moves  []string
	Limits Limits
}

type SearchResponse struct {
	Candidates []Candidate
	BestMove   string
	Info       Info
}

// Search runs one go command to completion. When ctx ends first the engine is
// told to stop and given a short grace period to report bestmove; if it does
// not, ErrSearchTimeout is returned and the session should be discarded.
func (s *Session) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	s.search.Lock()
	defer s.search.Unlock()

	positionCmd := buildPositionCommand(req.FEN, req.Moves)
	if err := s.send(positionCmd); err != nil {
		return SearchResponse{}, fmt.Errorf("send position: %w", err)
	}

	goTokens, err := buildGoTokens(req.Limits)
	if err != nil {
		return SearchResponse{}, err
	}
	goCmd := strings.Join(goTokens, " ")
	if err := s.send(goCmd + "\n"); err != nil {
		return SearchResponse{}, fmt.Errorf("send go: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, computeSearchTimeout(req.Limits))
	defer cancel()

	acc := newSearchAccumulator()
	for {
		line, err := s.readLine(searchCtx)
		if err != nil {
			if searchCtx.Err() != nil && !errors.Is(err, ErrEngineExited) {
				return s.stopAndDrain(acc, goCmd)
			}
			return SearchResponse{}, fmt.Errorf("read line: %w", err)
		}
		if resp, ok := acc.consume(line); ok {
			return resp, nil
		}
	}
}

func (s *Session) stopAndDrain(acc *searchAccumulator, goCmd string) (SearchResponse, error) {
	if err := s.send("stop\n"); err != nil {
		return SearchResponse{}, fmt.Errorf("send stop: %w", err)
	}
	graceCtx, cancel := context.WithTimeout(context.Background(), defaultStopGrace)
	defer cancel()
	for {
		line, err := s.readLine(graceCtx)
		if err != nil {
			obslog.L().Warn("uci_stop_no_bestmove", zap.String("go", goCmd), zap.Error(err))
			return SearchResponse{}, ErrSearchTimeout
		}
		if resp, ok := acc.consume(line); ok {
			return resp, nil
		}
	}
}

type searchAccumulator struct {
	candidates map[int]Candidate
	info       Info
}

func newSearchAccumulator() *searchAccumulator {
	return &searchAccumulator{candidates: make(map[int]Candidate)}
}

func (a *searchAccumulator) consume(line string) (SearchResponse, bool) {
	switch {
	case line == "":
		return SearchResponse{}, false
	case strings.HasPrefix(line, "info "):
		info, hasStats := parseInfoStats(line)
		if hasStats {
			a.info = info
		}
		if mv, cand, ok := parseInfo(line); ok {
			a.candidates[mv] = cand
		}
	case strings.HasPrefix(line, "bestmove"):
		return SearchResponse{
			Candidates: collapseCandidates(a.candidates),
			BestMove:   parseBestMove(line),
			Info:       a.info,
		}, true
	}
	return SearchResponse{}, false
}

func parseBestMove(line string) string {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return ""
	}
	switch parts[1] {
	case "(none)", "0000", "none":
		return ""
	}
	return parts[1]
}

func buildPositionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(strings.TrimSpace(fen))
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	sb.WriteString("\n")
	return sb.String()
}

func validateOptions(opt Options) error {
	if opt.Threads < 0 {
		return fmt.Errorf("threads must be >= 0: %d", opt.Threads)
	}
	if opt.HashMB <= 0 {
		return fmt.Errorf("hash size must be > 0: %d", opt.HashMB)
	}
	if opt.MultiPV <= 0 {
		return fmt.Errorf("multipv must be > 0: %d", opt.MultiPV)
	}
	return nil
}

func buildGoTokens(l Limits) ([]string, error) {
	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if l.NodeCap > 0 {
		args = append(args, "nodes", strconv.Itoa(l.NodeCap))
	}
	if len(args) == 1 {
		return nil, fmt.Errorf("no search limits specified")
	}
	return args, nil
}

func computeSearchTimeout(l Limits) time.Duration {
	if l.MoveTimeMillis > 0 {
		ms := l.MoveTimeMillis + 2000
		return time.Duration(ms) * time.Millisecond * 3
	}
	if l.Depth > 0 {
		base := time.Duration(l.Depth) * 300 * time.Millisecond
		if base < 6*time.Second {
			base = 6 * time.Second
		}
		if base > 20*time.Second {
			base = 20 * time.Second
		}
		return base
	}
	return 6 * time.Second
}

// parseInfo extracts the multipv slot and candidate from an info line with a pv.
func parseInfo(line string) (int, Candidate, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return 0, Candidate{}, false
	}
	var (
		multipv = 1
		evalCP  int
		mate    int
		pvIdx   = -1
	)

	for i := 0; i < len(parts); i++ {
		switch parts[i] {
		case "multipv":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					multipv = v
				}
				i++
			}
		case "score":
			if i+2 < len(parts) {
				kind := parts[i+1]
				val := parts[i+2]
				switch kind {
				case "cp":
					if v, err := strconv.Atoi(val); err == nil {
						evalCP = v
					}
				case "mate":
					if v, err := strconv.Atoi(val); err == nil {
						mate = v
						if v >= 0 {
							evalCP = mateScore
						} else {
							evalCP = -mateScore
						}
					}
				}
				i += 2
			}
		case "pv":
			pvIdx = i + 1
			i = len(parts)
		}
	}

	if pvIdx == -1 || pvIdx >= len(parts) {
		return 0, Candidate{}, false
	}
	principal := parts[pvIdx:]

	cand := Candidate{
		Move:      principal[0],
		EvalCP:    evalCP,
		Mate:      mate,
		Principal: append([]string(nil), principal...),
	}
	return multipv, cand, true
}

// parseInfoStats reads depth, nodes, nps and time from an info line.
func parseInfoStats(line string) (Info, bool) {
	parts := strings.Fields(line)
	var (
		info Info
		seen bool
	)
	for i := 1; i+1 < len(parts); i++ {
		key, val := parts[i], parts[i+1]
		switch key {
		case "depth":
			if v, err := strconv.Atoi(val); err == nil {
				info.Depth = v
				seen = true
			}
		case "nodes":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				info.Nodes = v
				seen = true
			}
		case "nps":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				info.NPS = v
			}
		case "time":
			if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				info.TimeMs = v
			}
		case "pv", "string":
			return info, seen
		default:
			continue
		}
		i++
	}
	return info, seen
}

func collapseCandidates(m map[int]Candidate) []Candidate {
	if len(m) == 0 {
		return nil
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	result := make([]Candidate, 0, len(keys))
	for _, k := range keys {
		result = append(result, m[k])
	}
	return result
}

func (s *Session) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) NewGame(ctx context.Context) error {
	if err := s.send("ucinewgame\n"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}

	for attempt := 1; attempt <= newGameRetryAttempts; attempt++ {
		err := s.EnsureReady(ctx)
		if err == nil {
			return nil
		}
		if attempt == newGameRetryAttempts {
			return err
		}
		obslog.L().Warn("uci_ready_retry",
			zap.Int("attempt", attempt),
			zap.Int("max", newGameRetryAttempts),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(newGameRetryDelay):
		}
	}
	return nil
}

// Supports reports whether the engine advertised the named option.
func (s *Session) Supports(name string) bool {
	_, ok := s.options[strings.ToLower(name)]
	return ok
}

func (s *Session) Close() error {
	s.once.Do(func() { close(s.quit) })
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdin != nil {
		_, _ = io.WriteString(s.stdin, "quit\n")
		s.stdin.Close()
		s.stdin = nil
	}

	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}

	if s.cmd != nil {
		err := s.cmd.Wait()
		s.cmd = nil
		return err
	}
	return nil
}

func (s *Session) initialize(ctx context.Context, opt Options) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	for {
		line, err := s.readLine(initCtx)
		if err != nil {
			return fmt.Errorf("wait uciok: %w", err)
		}
		if name, ok := parseOptionName(line); ok {
			s.options[strings.ToLower(name)] = struct{}{}
			continue
		}
		if strings.Contains(line, "uciok") {
			break
		}
	}

	if err := s.applyOptions(opt); err != nil {
		return err
	}

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}

	return nil
}

// parseOptionName extracts NAME from "option name NAME type ...".
func parseOptionName(line string) (string, bool) {
	if !strings.HasPrefix(line, "option name ") {
		return "", false
	}
	rest := strings.TrimPrefix(line, "option name ")
	if idx := strings.Index(rest, " type "); idx >= 0 {
		rest = rest[:idx]
	}
	rest = strings.TrimSpace(rest)
	return rest, rest != ""
}

func (s *Session) applyOptions(opt Options) error {
	threadCount := opt.Threads
	if threadCount <= 0 {
		threadCount = 1
	}
	wanted := []struct {
		name  string
		value int
	}{
		{"Threads", threadCount},
		{"Hash", opt.HashMB},
		{"MultiPV", opt.MultiPV},
	}
	for _, o := range wanted {
		// engines that advertise nothing still get the common options
		if len(s.options) > 0 && !s.Supports(o.name) {
			continue
		}
		if err := s.send(fmt.Sprintf("setoption name %s value %d\n", o.name, o.value)); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return nil
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin == nil {
		return ErrEngineExited
	}
	_, err := io.WriteString(s.stdin, msg)
	return err
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

// pump owns stdout so that an abandoned read never swallows the next line.
func (s *Session) pump(r *bufio.Reader) {
	defer close(s.done)
	for {
		line, err := r.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			select {
			case s.lines <- trimmed:
			case <-s.quit:
				return
			}
		}
		if err != nil {
			s.readErr = err
			return
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case line := <-s.lines:
		return line, nil
	default:
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line := <-s.lines:
		return line, nil
	case <-s.done:
		select {
		case line := <-s.lines:
			return line, nil
		default:
		}
		return "", fmt.Errorf("%w: %v", ErrEngineExited, s.readErr)
	}
}
