package wordgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// adjectives is a curated list of simple, memorable adjectives
var adjectives = []string{
	"amber", "brisk", "calm", "coral", "crisp",
	"deep", "dusty", "early", "faint", "fresh",
	"frost", "glad", "green", "hazel", "ivory",
	"keen", "late", "light", "loud", "lucid",
	"misty", "north", "olive", "pale", "plain",
	"prime", "quiet", "rough", "round", "rust",
	"sharp", "short", "slate", "small", "soft",
	"south", "spare", "steep", "still", "stone",
	"swift", "tall", "tidal", "trim", "vast",
	"warm", "west", "wide", "wild", "young",
}

// nouns is a curated list of memorable terminal and landscape words
var nouns = []string{
	"anchor", "basin", "beacon", "bridge", "brook",
	"canyon", "cedar", "cliff", "comet", "creek",
	"delta", "dune", "ember", "fjord", "forge",
	"gale", "glade", "grove", "harbor", "haven",
	"hollow", "inlet", "island", "keel", "lagoon",
	"ledge", "mesa", "orbit", "pier", "pine",
	"plume", "prairie", "quarry", "reef", "ridge",
	"river", "shoal", "signal", "sound", "spire",
	"strait", "summit", "terrace", "tide", "trail",
	"valley", "vista", "wharf", "willow", "zenith",
}

// Generate creates a random word pair in the format "adjective-noun"
// using cryptographically secure random number generation.
// Returns an empty string on error.
func Generate() string {
	adj, err := selectRandom(adjectives)
	if err != nil {
		return ""
	}

	noun, err := selectRandom(nouns)
	if err != nil {
		return ""
	}

	return fmt.Sprintf("%s-%s", adj, noun)
}

// selectRandom selects a random element from a slice using crypto/rand
func selectRandom(words []string) (string, error) {
	if len(words) == 0 {
		return "", fmt.Errorf("empty word list")
	}

	max := big.NewInt(int64(len(words)))
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate random number: %w", err)
	}

	return words[n.Int64()], nil
}
