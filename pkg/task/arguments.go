package task

import (
	"math"
	"regexp"
	"strconv"
)

const (
	// DefaultIterations is used when no --iterations flag is present
	DefaultIterations = 100
	// DefaultSaveEvery is used when no --save-every flag is present
	DefaultSaveEvery = 10
)

var (
	iterationsPattern = regexp.MustCompile(`--iterations[\s=]+(\d+)`)
	saveEveryPattern  = regexp.MustCompile(`--save-every[\s=]+(\d+)`)
)

// FrameArguments are the renderer flags that determine how many frames a run writes
type FrameArguments struct {
	Iterations int
	SaveEvery  int
}

// ParseFrameArguments extracts --iterations and --save-every from an argument
// list. The last match wins, values are floored at 1 and malformed flags are
// ignored.
func ParseFrameArguments(args []string) FrameArguments {
	return FrameArguments{
		Iterations: extractIntFlag(args, iterationsPattern, DefaultIterations),
		SaveEvery:  extractIntFlag(args, saveEveryPattern, DefaultSaveEvery),
	}
}

// ExpectedFrames returns the number of frame files a run is expected to write
// across all phases, never less than 1.
func ExpectedFrames(args []string, phases int) float64 {
	fa := ParseFrameArguments(args)
	total := float64(fa.Iterations) / float64(fa.SaveEvery) * float64(phases)
	return math.Max(1, total)
}

func extractIntFlag(args []string, pattern *regexp.Regexp, fallback int) int {
	value := fallback
	for _, arg := range args {
		matches := pattern.FindStringSubmatch(arg)
		if len(matches) < 2 {
			continue
		}
		n, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}
		value = max(1, n)
	}
	return value
}
