package driver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"classdex/internal/translate"
)

// Digest is a SHA-256 cache key.
type Digest [sha256.Size]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("driver: cbor enc mode: %v", err))
	}
	cborEncMode = em
}

// fingerprint is everything a translation result depends on. Field order is
// irrelevant: canonical CBOR sorts the map keys.
type fingerprint struct {
	Schema          uint16 `cbor:"schema"`
	PositionInfo    uint8  `cbor:"positions"`
	LocalInfo       bool   `cbor:"locals"`
	StrictNameCheck bool   `cbor:"strict"`
	Optimize        bool   `cbor:"optimize"`
	ParamsHigh      bool   `cbor:"params_high"`
	ClassPath       string `cbor:"path"`
	Content         Digest `cbor:"content"`
}

// Fingerprint derives the cache key for translating data, found at
// classPath, with opts.
func Fingerprint(opts translate.CfOptions, classPath string, data []byte) (Digest, error) {
	fp := fingerprint{
		Schema:          cacheSchemaVersion,
		PositionInfo:    uint8(opts.PositionInfo),
		LocalInfo:       opts.LocalInfo,
		StrictNameCheck: opts.StrictNameCheck,
		Optimize:        opts.Optimize,
		ParamsHigh:      opts.ParamsHigh,
		Content:         sha256.Sum256(data),
	}
	// The path only matters when it is checked.
	if opts.StrictNameCheck {
		fp.ClassPath = classPath
	}
	b, err := cborEncMode.Marshal(fp)
	if err != nil {
		return Digest{}, err
	}
	return sha256.Sum256(b), nil
}
