// Package storage caches fitted scaling models keyed by a fingerprint of
// the benchmark series they were fitted on.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"

	"github.com/HatiCode/corecast/pkg/scaling"
)

// Store persists fitted models. Keys are produced by Fingerprint.
type Store interface {
	Put(ctx context.Context, key string, model scaling.Model) error
	Get(ctx context.Context, key string) (scaling.Model, bool, error)
}

// Fingerprint returns a stable hex key for a series and the fit parameters.
// Two series with the same observations in any order share a fingerprint.
func Fingerprint(series scaling.Series, maxDegree int, minRSquared float64) string {
	sorted := make(scaling.Series, len(series))
	copy(sorted, series)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Size != sorted[j].Size {
			return sorted[i].Size < sorted[j].Size
		}
		return sorted[i].WallSeconds < sorted[j].WallSeconds
	})

	h := sha256.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	put(uint64(int64(maxDegree)))
	put(math.Float64bits(minRSquared))
	for _, o := range sorted {
		put(math.Float64bits(o.Size))
		put(math.Float64bits(o.WallSeconds))
	}
	return hex.EncodeToString(h.Sum(nil))
}
