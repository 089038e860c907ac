package eventlog

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - ns/{ns}/log/m
// - ns/{ns}/log/e/{id_be8}

var (
	nsPrefix   = []byte("ns/")
	logSeg     = []byte("/log/")
	metaSuffix = []byte("m")
	entrySeg   = []byte("e/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func logPrefix(namespace string) []byte {
	k := make([]byte, 0, len(namespace)+24)
	k = append(k, nsPrefix...)
	k = append(k, namespace...)
	k = append(k, logSeg...)
	return k
}

// KeyLogMeta builds the namespace log metadata key.
func KeyLogMeta(namespace string) []byte {
	return append(logPrefix(namespace), metaSuffix...)
}

// KeyLogEntry builds the entry key with a big-endian id for proper ordering.
func KeyLogEntry(namespace string, id uint64) []byte {
	k := append(logPrefix(namespace), entrySeg...)
	return appendBE8(k, id)
}

// entryBounds returns [lower, upper) covering every entry key of a namespace.
func entryBounds(namespace string) (lower, upper []byte) {
	lower = append(logPrefix(namespace), entrySeg...)
	upper = append(append([]byte(nil), lower[:len(lower)-1]...), entrySeg[len(entrySeg)-1]+1)
	return lower, upper
}

// idFromKey extracts the id suffix of an entry key.
func idFromKey(k []byte) uint64 {
	return binary.BigEndian.Uint64(k[len(k)-8:])
}
