package eval

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/blunderscan/internal/engine"
	"github.com/freeeve/blunderscan/internal/game"
)

const (
	testShallow = 10
	testDeep    = 20
)

// score is what the fake engine reports for a position at each stage.
type score struct {
	shallow int
	deep    int
}

// fakeEngine is an in-memory Evaluator. Positions are plain strings; the
// detector never looks inside them.
type fakeEngine struct {
	scores map[string]score
	fail   map[string]error
	delay  time.Duration
	live   *int64 // shared count of open sessions, may be nil

	mu     sync.Mutex
	pos    string
	sets   []string
	depths []int
	closed bool
}

func (f *fakeEngine) SetPosition(fen string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return engine.ErrClosed
	}
	f.pos = fen
	f.sets = append(f.sets, fen)
	return nil
}

func (f *fakeEngine) Evaluate(depth int) (engine.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return engine.Analysis{}, engine.ErrClosed
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.depths = append(f.depths, depth)
	if err := f.fail[f.pos]; err != nil {
		return engine.Analysis{}, err
	}
	s := f.scores[f.pos]
	cp := s.shallow
	if depth > testShallow {
		cp = s.deep
	}
	return engine.Analysis{BestMove: "e2e4", Eval: game.FromCentipawns(cp)}, nil
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed && f.live != nil {
		atomic.AddInt64(f.live, -1)
	}
	f.closed = true
	return nil
}

// fakeFactory hands out fakeEngines sharing one score table and tracks how
// many are open at once.
type fakeFactory struct {
	scores map[string]score
	fail   map[string]error
	delay  time.Duration

	live   int64
	peak   int64
	opened int64
}

func (ff *fakeFactory) New() (Evaluator, error) {
	atomic.AddInt64(&ff.opened, 1)
	n := atomic.AddInt64(&ff.live, 1)
	for {
		p := atomic.LoadInt64(&ff.peak)
		if n <= p || atomic.CompareAndSwapInt64(&ff.peak, p, n) {
			break
		}
	}
	return &fakeEngine{
		scores: ff.scores,
		fail:   ff.fail,
		delay:  ff.delay,
		live:   &ff.live,
	}, nil
}

func fen(ply int) string {
	return fmt.Sprintf("position-%d", ply)
}

// synthetic builds a game of n plies between white and black.
func synthetic(id, white, black string, n int) game.Record {
	rec := game.Record{
		ID:      id,
		Headers: map[string]string{"White": white, "Black": black, "Site": id},
	}
	for ply := 0; ply < n; ply++ {
		rec.Moves = append(rec.Moves, game.MoveRecord{
			FenBefore: fen(ply),
			FenAfter:  fen(ply + 1),
			SAN:       fmt.Sprintf("m%d", ply),
		})
	}
	return rec
}

func testDetectorConfig(threshold, skip int) DetectorConfig {
	return DetectorConfig{
		ShallowDepth: testShallow,
		DeepDepth:    testDeep,
		Threshold:    threshold,
		SkipPlies:    skip,
		Logger:       zerolog.Nop(),
	}
}

func TestDetect_SingleBlunder(t *testing.T) {
	scores := map[string]score{
		fen(6): {shallow: 30, deep: 30},
		fen(7): {shallow: 30, deep: 50},
	}
	before := &fakeEngine{scores: scores}
	after := &fakeEngine{scores: scores}
	d := NewDetector(testDetectorConfig(40, 5), before, after)

	rec := synthetic("g1", "A", "B", 8)
	blunders, err := d.Detect(&rec, "A", 8)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(blunders) != 1 {
		t.Fatalf("got %d blunders, want 1", len(blunders))
	}
	want := game.Blunder{Position: fen(6), Move: "m6", EvalBefore: 30, EvalAfter: 50}
	if !blunders[0].Equal(want) {
		t.Errorf("blunder = %+v, want %+v", blunders[0], want)
	}

	// Only ply 6 is White's move past the skip; the deep stage reuses the
	// position already loaded.
	if len(before.sets) != 1 || before.sets[0] != fen(6) {
		t.Errorf("before positions = %v, want [%s]", before.sets, fen(6))
	}
	if len(after.sets) != 1 || after.sets[0] != fen(7) {
		t.Errorf("after positions = %v, want [%s]", after.sets, fen(7))
	}
	wantDepths := []int{testShallow, testDeep}
	for _, f := range []*fakeEngine{before, after} {
		if fmt.Sprint(f.depths) != fmt.Sprint(wantDepths) {
			t.Errorf("depths = %v, want %v", f.depths, wantDepths)
		}
	}

	screened, confirmed := d.Stats()
	if screened != 1 || confirmed != 1 {
		t.Errorf("Stats() = (%d, %d), want (1, 1)", screened, confirmed)
	}
}

func TestDetect_OnlyAuditedSidePastSkip(t *testing.T) {
	scores := make(map[string]score)
	for ply := 0; ply <= 20; ply++ {
		scores[fen(ply)] = score{shallow: 500, deep: 500}
	}

	tests := []struct {
		name      string
		player    string
		skip      int
		moveLimit int
		wantPlies []int
	}{
		{"black skip 4", "B", 4, 0, []int{5, 7, 9, 11, 13, 15, 17, 19}},
		{"white skip 10 limit 16", "A", 10, 16, []int{10, 12, 14}},
		{"white no skip limit 3", "A", 0, 3, []int{0, 2}},
		{"skip past limit", "A", 12, 12, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := &fakeEngine{scores: scores}
			after := &fakeEngine{scores: scores}
			d := NewDetector(testDetectorConfig(100, tt.skip), before, after)

			rec := synthetic("g", "A", "B", 20)
			blunders, err := d.Detect(&rec, tt.player, tt.moveLimit)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if len(blunders) != len(tt.wantPlies) {
				t.Fatalf("got %d blunders, want %d", len(blunders), len(tt.wantPlies))
			}
			for i, ply := range tt.wantPlies {
				if blunders[i].Position != fen(ply) {
					t.Errorf("blunder %d at %s, want %s", i, blunders[i].Position, fen(ply))
				}
			}
			for _, pos := range before.sets {
				var ply int
				fmt.Sscanf(pos, "position-%d", &ply)
				if ply < tt.skip {
					t.Errorf("evaluated skipped ply %d", ply)
				}
			}
		})
	}
}

func TestDetect_DeepStageRejectsFalsePositive(t *testing.T) {
	scores := map[string]score{
		fen(0): {shallow: 200, deep: 10},
		fen(1): {shallow: 200, deep: 10},
	}
	before := &fakeEngine{scores: scores}
	after := &fakeEngine{scores: scores}
	d := NewDetector(testDetectorConfig(100, 0), before, after)

	rec := synthetic("g", "A", "B", 2)
	blunders, err := d.Detect(&rec, "A", 0)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(blunders) != 0 {
		t.Errorf("got %d blunders, want 0", len(blunders))
	}
	screened, confirmed := d.Stats()
	if screened != 1 || confirmed != 1 {
		t.Errorf("Stats() = (%d, %d), want (1, 1)", screened, confirmed)
	}
}

func TestDetect_ThresholdIsStrict(t *testing.T) {
	tests := []struct {
		name   string
		before int
		after  int
		want   int
	}{
		{"equal to threshold", 60, 40, 0},
		{"one above threshold", 60, 41, 1},
		{"below threshold", 10, 10, 0},
		{"mate swing", 0, 2 * game.MateMultiplier, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores := map[string]score{
				fen(0): {shallow: tt.before, deep: tt.before},
				fen(1): {shallow: tt.after, deep: tt.after},
			}
			d := NewDetector(testDetectorConfig(100, 0), &fakeEngine{scores: scores}, &fakeEngine{scores: scores})
			rec := synthetic("g", "A", "B", 1)
			blunders, err := d.Detect(&rec, "A", 0)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if len(blunders) != tt.want {
				t.Errorf("got %d blunders, want %d", len(blunders), tt.want)
			}
		})
	}
}

func TestDetect_ShallowScreenNeverExceedsConfirmed(t *testing.T) {
	scores := make(map[string]score)
	for ply := 0; ply <= 30; ply++ {
		// Alternate real blunders, false positives and quiet moves.
		switch ply % 3 {
		case 0:
			scores[fen(ply)] = score{shallow: 300, deep: 300}
		case 1:
			scores[fen(ply)] = score{shallow: 300, deep: -300}
		default:
			scores[fen(ply)] = score{shallow: 0, deep: 0}
		}
	}
	d := NewDetector(testDetectorConfig(100, 0), &fakeEngine{scores: scores}, &fakeEngine{scores: scores})
	rec := synthetic("g", "A", "B", 30)
	blunders, err := d.Detect(&rec, "A", 0)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	screened, confirmed := d.Stats()
	if confirmed > screened {
		t.Errorf("confirmed %d > screened %d", confirmed, screened)
	}
	if int64(len(blunders)) > confirmed {
		t.Errorf("%d blunders > %d confirmed", len(blunders), confirmed)
	}
	for _, b := range blunders {
		if b.Loss() <= 100 {
			t.Errorf("blunder %s has loss %d, want > 100", b.Move, b.Loss())
		}
	}
}

func TestDetect_PlayerNotFound(t *testing.T) {
	before := &fakeEngine{}
	d := NewDetector(testDetectorConfig(100, 0), before, &fakeEngine{})
	rec := synthetic("g", "A", "B", 4)
	_, err := d.Detect(&rec, "C", 0)
	if !errors.Is(err, game.ErrPlayerNotFound) {
		t.Fatalf("Detect error = %v, want ErrPlayerNotFound", err)
	}
	if len(before.sets) != 0 {
		t.Errorf("engine used before player check: %v", before.sets)
	}
}

func TestDetect_EngineErrorPropagates(t *testing.T) {
	broken := &engine.OpError{Op: "evaluate", Kind: engine.ErrPipe, Err: errors.New("broken pipe")}
	scores := map[string]score{fen(0): {shallow: 0, deep: 0}}
	f := &fakeEngine{scores: scores, fail: map[string]error{fen(2): broken}}
	d := NewDetector(testDetectorConfig(100, 0), f, &fakeEngine{scores: scores})

	rec := synthetic("g", "A", "B", 4)
	_, err := d.Detect(&rec, "A", 0)
	if !errors.Is(err, engine.ErrPipe) {
		t.Fatalf("Detect error = %v, want ErrPipe", err)
	}
}
