package slots

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TimeLayout is the canonical wall-clock format.
const TimeLayout = "15:04"

// ErrInvalidTime is returned for strings that are not HH:MM.
var ErrInvalidTime = errors.New("slots: invalid time")

// Block is one operating-hours window, as offsets from local midnight.
type Block struct {
	Start time.Duration
	End   time.Duration
}

// ParseBlocks parses specs like "09:00-14:00". Blocks are returned sorted.
func ParseBlocks(specs []string) ([]Block, error) {
	blocks := make([]Block, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(strings.TrimSpace(spec), "-")
		if len(parts) != 2 {
			return nil, fmt.Errorf("slots: invalid block %q", spec)
		}
		start, err := ParseClock(parts[0])
		if err != nil {
			return nil, fmt.Errorf("slots: block %q: %w", spec, err)
		}
		end, err := ParseClock(parts[1])
		if err != nil {
			return nil, fmt.Errorf("slots: block %q: %w", spec, err)
		}
		if end <= start {
			return nil, fmt.Errorf("slots: block %q ends before it starts", spec)
		}
		blocks = append(blocks, Block{Start: start, End: end})
	}
	if len(blocks) == 0 {
		return nil, errors.New("slots: no operating blocks")
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Start < blocks[j].Start })
	return blocks, nil
}

// ParseClock parses HH:MM (hours 0-24) into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	h, m, err := SplitClock(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// SplitClock returns the hour and minute of an HH:MM string.
func SplitClock(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return h, m, nil
}

// Calculator produces the candidate start-times for a day. Blocks may be
// replaced at runtime; step and location are fixed.
type Calculator struct {
	mu     sync.RWMutex
	blocks []Block
	step   time.Duration
	loc    *time.Location
}

// NewCalculator validates the inputs. A nil location means UTC.
func NewCalculator(blocks []Block, step time.Duration, loc *time.Location) (*Calculator, error) {
	if len(blocks) == 0 {
		return nil, errors.New("slots: no operating blocks")
	}
	if step <= 0 {
		return nil, errors.New("slots: step must be positive")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{blocks: blocks, step: step, loc: loc}, nil
}

// SetBlocks replaces the operating blocks.
func (c *Calculator) SetBlocks(blocks []Block) error {
	if len(blocks) == 0 {
		return errors.New("slots: no operating blocks")
	}
	sorted := append([]Block(nil), blocks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	c.mu.Lock()
	c.blocks = sorted
	c.mu.Unlock()
	return nil
}

// Blocks returns a copy of the operating blocks.
func (c *Calculator) Blocks() []Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Block(nil), c.blocks...)
}

// Location returns the clinic location.
func (c *Calculator) Location() *time.Location { return c.loc }

// Step returns the slot granularity.
func (c *Calculator) Step() time.Duration { return c.step }

// Grid returns the ordered candidate starts for date's calendar day. The last
// slot of each block is the last start strictly before the block end.
func (c *Calculator) Grid(date time.Time) []time.Time {
	y, m, d := date.In(c.loc).Date()
	var out []time.Time
	for _, b := range c.Blocks() {
		for off := b.Start; off < b.End; off += c.step {
			out = append(out, at(y, m, d, off, c.loc))
		}
	}
	return out
}

// Bounds returns the opening offset of the first block and the closing offset
// of the last one.
func (c *Calculator) Bounds() (open, close time.Duration) {
	blocks := c.Blocks()
	open, close = blocks[0].Start, blocks[0].End
	for _, b := range blocks[1:] {
		if b.Start < open {
			open = b.Start
		}
		if b.End > close {
			close = b.End
		}
	}
	return open, close
}

// DayRange returns [midnight, next midnight) for date in the clinic location.
func (c *Calculator) DayRange(date time.Time) (time.Time, time.Time) {
	y, m, d := date.In(c.loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, c.loc)
	return start, start.AddDate(0, 0, 1)
}

// String renders b as "HH:MM-HH:MM".
func (b Block) String() string {
	return formatOffset(b.Start) + "-" + formatOffset(b.End)
}

func formatOffset(off time.Duration) string {
	mins := int(off / time.Minute)
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}

func at(y int, m time.Month, d int, off time.Duration, loc *time.Location) time.Time {
	mins := int(off / time.Minute)
	return time.Date(y, m, d, mins/60, mins%60, 0, 0, loc)
}

// FormatAll renders times as HH:MM.
func FormatAll(times []time.Time) []string {
	out := make([]string, 0, len(times))
	for _, t := range times {
		out = append(out, t.Format(TimeLayout))
	}
	return out
}
