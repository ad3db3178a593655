package knn

import (
	"fmt"
	"strings"
)

// LoadStrategy controls how much of the corpus is held in memory.
type LoadStrategy int

const (
	// LoadAll reads the whole corpus before scoring.
	LoadAll LoadStrategy = iota
	// Streaming scores fixed-size batches and keeps only the best k.
	Streaming
)

func (s LoadStrategy) String() string {
	switch s {
	case LoadAll:
		return "load_all"
	case Streaming:
		return "streaming"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// ParseLoadStrategy accepts "load_all" and "streaming" ("batch" and
// "streaming_batch" are aliases).
func ParseLoadStrategy(s string) (LoadStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "load_all", "all":
		return LoadAll, nil
	case "streaming", "streaming_batch", "streaming-batch", "batch":
		return Streaming, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownLoadStrategy, s)
	}
}

func (s LoadStrategy) MarshalText() ([]byte, error) {
	if s != LoadAll && s != Streaming {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLoadStrategy, int(s))
	}
	return []byte(s.String()), nil
}

func (s *LoadStrategy) UnmarshalText(text []byte) error {
	parsed, err := ParseLoadStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
