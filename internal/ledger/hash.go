package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// GenesisHash is the PreviousHash sentinel of the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// hashDomain separates block hashes from any other SHA-256 use of the same bytes.
const hashDomain = "agriledger/block/v1"

// Hash computes the hex SHA-256 of a block's fields. Index and timestamp are
// fixed-width; previousHash and canonicalData are length-prefixed, so distinct
// inputs never share an encoding.
func Hash(index int, timestamp time.Time, previousHash string, canonicalData []byte) string {
	var buf bytes.Buffer
	writeLenPrefixed(&buf, []byte(hashDomain))

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(index))
	buf.Write(n[:])
	binary.BigEndian.PutUint64(n[:], uint64(timestamp.UnixNano()))
	buf.Write(n[:])

	writeLenPrefixed(&buf, []byte(previousHash))
	writeLenPrefixed(&buf, canonicalData)

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// HashBlock recomputes b's hash from its stored fields, ignoring b.Hash.
func HashBlock(b *Block) string {
	return Hash(b.Index, b.Timestamp, b.PreviousHash, Canonicalize(b.Data))
}

// PassportData returns the canonical creation fields of p that a digital
// passport is computed over. Any passport already set on p is excluded.
func PassportData(p Payload) []byte {
	p.DigitalPassport = ""
	return Canonicalize(p)
}

// DigitalPassport returns the hex SHA-256 of PassportData(p).
func DigitalPassport(p Payload) string {
	sum := sha256.Sum256(PassportData(p))
	return hex.EncodeToString(sum[:])
}
