// Package id hands out identifiers for events, packets and recordings.
package id

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator can generate IDs.
type IDGenerator interface {
	Generate() string
}

// IDs come from one sequence so that repeated runs stay byte-identical.
var generator IDGenerator = &sequentialIDGenerator{}

// Generate returns a new ID from the package-level generator.
func Generate() string {
	return generator.Generate()
}

// NewIDGenerator returns an independent sequential generator.
func NewIDGenerator() IDGenerator {
	return &sequentialIDGenerator{}
}

type sequentialIDGenerator struct {
	nextID uint64
}

func (g *sequentialIDGenerator) Generate() string {
	idNumber := atomic.AddUint64(&g.nextID, 1)

	return strconv.FormatUint(idNumber, 10)
}

// Unique returns a globally unique ID regardless of the configured
// generator. It is meant for naming artifacts such as output files.
func Unique() string {
	return xid.New().String()
}
