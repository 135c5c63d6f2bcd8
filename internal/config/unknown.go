package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when an unknown config key is detected.
const maxLevenshteinDistance = 3

// knownKeys are the valid flat top-level keys nested under each TOML table
// in a syncd config file.
var knownKeys = map[string]bool{
	"sync_dir": true, "remote_project": true, "token_file": true,
	"ignore_patterns": true, "ignore_marker": true, "skip_dotfiles": true, "max_file_size": true,
	"debounce_interval": true,
	"poll_interval": true, "retry_initial": true, "retry_ceiling": true,
	"retry_max_tries": true, "restart_window": true, "max_restarts_per_window": true,
	"log_level": true, "log_file": true, "log_format": true,
	"endpoint": true, "connect_timeout": true, "data_timeout": true, "user_agent": true,
}

// checkUnknownKeys inspects TOML decode metadata for keys that were present
// in the file but not recognized by any Config field, returning an error
// with "did you mean?" suggestions — mirrors the teacher's
// internal/config/unknown.go fail-fast behavior on typos.
func checkUnknownKeys(md *toml.MetaData) error {
	var unknown []string

	for _, key := range md.Undecoded() {
		leaf := key.String()
		if idx := strings.LastIndex(leaf, "."); idx >= 0 {
			leaf = leaf[idx+1:]
		}

		if !knownKeys[leaf] {
			unknown = append(unknown, key.String())
		}
	}

	if len(unknown) == 0 {
		return nil
	}

	sort.Strings(unknown)

	var b strings.Builder

	for _, key := range unknown {
		fmt.Fprintf(&b, "\n  unknown config key %q%s", key, suggestionFor(key))
	}

	return errors.New("config: unrecognized keys found:" + b.String())
}

// suggestionFor returns a " (did you mean %q?)" hint if a known key is
// within maxLevenshteinDistance of the unknown one, else an empty string.
func suggestionFor(key string) string {
	leaf := key
	if idx := strings.LastIndex(leaf, "."); idx >= 0 {
		leaf = leaf[idx+1:]
	}

	best := ""
	bestDist := maxLevenshteinDistance + 1

	for known := range knownKeys {
		d := levenshtein(leaf, known)
		if d < bestDist {
			bestDist = d
			best = known
		}
	}

	if best == "" || bestDist > maxLevenshteinDistance {
		return ""
	}

	return fmt.Sprintf(" (did you mean %q?)", best)
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	m, n := len(ra), len(rb)

	prev := make([]int, n+1)
	curr := make([]int, n+1)

	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i

		for j := 1; j <= n; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}

			curr[j] = minInt(curr[j-1]+1, minInt(prev[j]+1, prev[j-1]+cost))
		}

		prev, curr = curr, prev
	}

	return prev[n]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}

	return b
}
