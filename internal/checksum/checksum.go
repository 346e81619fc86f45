// Package checksum computes content digests for files and byte streams
// over a fixed set of hash algorithms.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

// DefaultBlockSize is the read block size used when none is specified.
const DefaultBlockSize = 4 * 1024 * 1024 // 4 MiB

// ErrUnsupportedAlgorithm is returned by New for unknown algorithm names.
var ErrUnsupportedAlgorithm = errors.New("unsupported checksum algorithm")

// Info describes an algorithm's speed/security tradeoff for display.
type Info struct {
	Description    string `json:"description"`
	Speed          string `json:"speed"`
	Security       string `json:"security"`
	Recommendation string `json:"recommendation"`
}

type algorithm struct {
	newHash func() hash.Hash
	info    Info
}

// The strategy table is fixed at compile time: every entry is known to
// construct, so there is no runtime capability probing.
var algorithms = map[string]algorithm{
	"md5": {
		newHash: md5.New,
		info: Info{
			Description:    "Fast, but cryptographically broken",
			Speed:          "Very fast",
			Security:       "Low",
			Recommendation: "Not recommended for security purposes",
		},
	},
	"sha1": {
		newHash: sha1.New,
		info: Info{
			Description:    "Older algorithm with known weaknesses",
			Speed:          "Fast",
			Security:       "Medium-Low",
			Recommendation: "Not recommended for security purposes",
		},
	},
	"sha256": {
		newHash: sha256.New,
		info: Info{
			Description:    "Secure hash algorithm (SHA-2 family)",
			Speed:          "Medium",
			Security:       "High",
			Recommendation: "Good balance of security and speed",
		},
	},
	"sha512": {
		newHash: sha512.New,
		info: Info{
			Description:    "Secure hash algorithm with larger output (SHA-2 family)",
			Speed:          "Medium",
			Security:       "Very High",
			Recommendation: "Good for high-security needs",
		},
	},
	"blake2b": {
		newHash: func() hash.Hash {
			h, _ := blake2b.New512(nil) // only errors with a key set
			return h
		},
		info: Info{
			Description:    "Modern cryptographic hash function",
			Speed:          "Fast",
			Security:       "High",
			Recommendation: "Good balance of speed and security",
		},
	},
	"xxhash64": {
		newHash: func() hash.Hash { return xxhash.New() },
		info: Info{
			Description:    "Extremely fast non-cryptographic hash function",
			Speed:          "Extremely Fast",
			Security:       "Low (not cryptographic)",
			Recommendation: "Best for performance-critical scanning",
		},
	},
}

// Supported returns the names of all supported algorithms, sorted.
func Supported() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AlgorithmInfo returns display metadata for an algorithm.
func AlgorithmInfo(name string) (Info, bool) {
	a, ok := algorithms[name]
	return a.info, ok
}

// Calculator computes hex digests using one algorithm and block size.
// A Calculator is safe for concurrent use; each call hashes with its own
// hash state and read buffer.
type Calculator struct {
	algorithm string
	blockSize int
	newHash   func() hash.Hash
}

// New returns a Calculator bound to the named algorithm. A blockSize of
// zero or less selects DefaultBlockSize.
func New(name string, blockSize int) (*Calculator, error) {
	a, ok := algorithms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s (supported: %s)",
			ErrUnsupportedAlgorithm, name, strings.Join(Supported(), ", "))
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Calculator{algorithm: name, blockSize: blockSize, newHash: a.newHash}, nil
}

// Algorithm returns the algorithm name the calculator was built with.
func (c *Calculator) Algorithm() string { return c.algorithm }

// File computes the digest of a file's contents, reading in blocks.
// The error is non-nil when the file cannot be opened or read; the
// caller decides whether that constitutes a scan error.
func (c *Calculator) File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	digest, err := c.Reader(f)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return digest, nil
}

// Reader computes the digest of everything readable from r.
func (c *Calculator) Reader(r io.Reader) (string, error) {
	h := c.newHash()
	buf := make([]byte, c.blockSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Bytes computes the digest of an in-memory byte sequence.
func (c *Calculator) Bytes(b []byte) string {
	h := c.newHash()
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}
