package telemetry

import (
	"fmt"
	"log/slog"
	"math"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkSettled    BookmarkType = "settled"
	BookmarkSaturation BookmarkType = "saturation"
	BookmarkDepletion  BookmarkType = "depletion"
	BookmarkDrift      BookmarkType = "drift"
	BookmarkErrors     BookmarkType = "errors"
)

// Detection thresholds.
const (
	settleTolerance = 1e-4 // Max change of fill mean and std between windows
	settleWindows   = 3    // Consecutive quiet windows before settled triggers
	saturationPct   = 50.0
	depletionFactor = 2.0
	depletionMinPct = 10.0
	driftTolerance  = 1e-3 // Relative to the window's total amount
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Generation  int          `csv:"generation"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"generation", b.Generation,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in a garden run.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	last         *WindowStats
	quietWindows int
	wasSaturated bool
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 3 {
		historySize = 3 // minimum for a rolling depletion average
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	// Error and drift checks need no history
	if stats.Errors > 0 {
		bookmarks = append(bookmarks, Bookmark{
			Type:        BookmarkErrors,
			Generation:  stats.WindowEndGen,
			Description: fmt.Sprintf("%d of %d diffusion calls failed", stats.Errors, stats.Runs+stats.Errors),
		})
	}
	if b := bd.checkDrift(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkSaturation(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	if bd.last != nil {
		if b := bd.checkSettled(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkDepletion(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	bd.addToHistory(stats)
	last := stats
	bd.last = &last

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

func (bd *BookmarkDetector) checkDrift(stats WindowStats) *Bookmark {
	limit := driftTolerance * math.Max(math.Abs(stats.TotalAmount), 1)
	if stats.MaxAbsDrift <= limit {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkDrift,
		Generation:  stats.WindowEndGen,
		Description: fmt.Sprintf("Run changed its total amount by %.4g (limit %.4g)", stats.MaxAbsDrift, limit),
	}
}

func (bd *BookmarkDetector) checkSaturation(stats WindowStats) *Bookmark {
	saturated := stats.SaturatedPct >= saturationPct
	defer func() { bd.wasSaturated = saturated }()

	if !saturated || bd.wasSaturated {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkSaturation,
		Generation:  stats.WindowEndGen,
		Description: fmt.Sprintf("%.0f%% of slots at capacity", stats.SaturatedPct),
	}
}

func (bd *BookmarkDetector) checkSettled(stats WindowStats) *Bookmark {
	if stats.Runs == 0 {
		return nil
	}
	dMean := math.Abs(stats.FillMean - bd.last.FillMean)
	dStd := math.Abs(stats.FillStd - bd.last.FillStd)
	if dMean < settleTolerance && dStd < settleTolerance && stats.Slots == bd.last.Slots {
		bd.quietWindows++
	} else {
		bd.quietWindows = 0
	}

	if bd.quietWindows == settleWindows { // trigger exactly once per quiet stretch
		return &Bookmark{
			Type:        BookmarkSettled,
			Generation:  stats.WindowEndGen,
			Description: fmt.Sprintf("Fill distribution unchanged over %d windows (mean %.3f, std %.3f)", settleWindows, stats.FillMean, stats.FillStd),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkDepletion(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 2 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += h.DepletedPct
	}
	avg := total / float64(len(history))

	if stats.DepletedPct > depletionMinPct && stats.DepletedPct > avg*depletionFactor {
		return &Bookmark{
			Type:        BookmarkDepletion,
			Generation:  stats.WindowEndGen,
			Description: fmt.Sprintf("Depleted slots rose to %.1f%% from a %.1f%% average", stats.DepletedPct, avg),
		}
	}
	return nil
}
