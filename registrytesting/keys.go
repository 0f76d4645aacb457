package registrytesting

import (
	"crypto/sha256"
	"fmt"

	"github.com/forestrie/go-programregistry/keys"
)

// NumberedKey returns a stable key for the i'th member of a labelled test
// population. The keys are digests, so they are spread over the key space the
// way real program keys are.
func NumberedKey(label string, i int) keys.Key {
	return keys.Key(sha256.Sum256([]byte(fmt.Sprintf("%s-%d", label, i))))
}

// ProgramKey is NumberedKey for the "program" population.
func ProgramKey(i int) keys.Key {
	return NumberedKey("program", i)
}
