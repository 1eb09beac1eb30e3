package metadata

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Metaplex borsh string caps, matching the on-chain account layout.
const (
	maxNameLen   = 32
	maxSymbolLen = 10
	maxURILen    = 200
)

// metaplexKindMetadata is the account discriminator for MetadataV1.
const metaplexKindMetadata = 4

// MetadataPDA derives the Metaplex metadata account address for a mint.
func MetadataPDA(mint string) (string, error) {
	mintBytes, err := base58.Decode(mint)
	if err != nil {
		return "", fmt.Errorf("decode mint: %w", err)
	}
	programBytes, err := base58.Decode(MetaplexProgramID)
	if err != nil {
		return "", fmt.Errorf("decode program id: %w", err)
	}

	seeds := [][]byte{[]byte("metadata"), programBytes, mintBytes}
	pda := derivePDA(seeds, programBytes)
	if pda == "" {
		return "", fmt.Errorf("no valid bump seed for mint %s", mint)
	}
	return pda, nil
}

// derivePDA derives a Program Derived Address using the Solana algorithm:
// the first bump from 255 down whose sha256(seeds || bump || program ||
// "ProgramDerivedAddress") lands off the ed25519 curve.
func derivePDA(seeds [][]byte, programID []byte) string {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:])
		}
	}

	return ""
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// metaplexRecord holds the fields parsed from a metadata account.
type metaplexRecord struct {
	name                 string
	symbol               string
	uri                  string
	sellerFeeBasisPoints int
	primarySaleHappened  bool
	mutable              bool
}

// parseMetadataAccount decodes a base64 Metaplex metadata account.
// Layout: key u8, updateAuthority pubkey, mint pubkey, then borsh strings
// for name/symbol/uri, sellerFeeBasisPoints u16, Option<creators>,
// primarySaleHappened u8, isMutable u8.
func parseMetadataAccount(data string) (*metaplexRecord, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}

	if len(decoded) < 1+32+32 {
		return nil, fmt.Errorf("account data too short: %d", len(decoded))
	}
	if decoded[0] != metaplexKindMetadata {
		return nil, fmt.Errorf("unexpected account kind %d", decoded[0])
	}

	offset := 1 + 32 + 32

	name, offset, err := readBorshString(decoded, offset, maxNameLen)
	if err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	symbol, offset, err := readBorshString(decoded, offset, maxSymbolLen)
	if err != nil {
		return nil, fmt.Errorf("symbol: %w", err)
	}
	uri, offset, err := readBorshString(decoded, offset, maxURILen)
	if err != nil {
		return nil, fmt.Errorf("uri: %w", err)
	}

	if offset+2 > len(decoded) {
		return nil, fmt.Errorf("truncated before seller fee")
	}
	fee := int(binary.LittleEndian.Uint16(decoded[offset:]))
	offset += 2

	offset, err = skipCreators(decoded, offset)
	if err != nil {
		return nil, fmt.Errorf("creators: %w", err)
	}

	if offset+2 > len(decoded) {
		return nil, fmt.Errorf("truncated before flags")
	}
	primarySale := decoded[offset] != 0
	mutable := decoded[offset+1] != 0

	return &metaplexRecord{
		name:                 name,
		symbol:               symbol,
		uri:                  uri,
		sellerFeeBasisPoints: fee,
		primarySaleHappened:  primarySale,
		mutable:              mutable,
	}, nil
}

// readBorshString reads a u32-length-prefixed string and trims the NUL
// padding Metaplex stores inside the fixed-size field.
func readBorshString(data []byte, offset, maxLen int) (string, int, error) {
	if offset+4 > len(data) {
		return "", 0, fmt.Errorf("truncated length prefix")
	}
	length := int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4

	if length > maxLen {
		return "", 0, fmt.Errorf("length %d exceeds cap %d", length, maxLen)
	}
	if offset+length > len(data) {
		return "", 0, fmt.Errorf("truncated body: want %d bytes", length)
	}

	value := strings.TrimRight(string(data[offset:offset+length]), "\x00")
	return value, offset + length, nil
}

// skipCreators advances past an Option<Vec<Creator>> field. Each creator
// is pubkey (32) + verified u8 + share u8.
func skipCreators(data []byte, offset int) (int, error) {
	if offset >= len(data) {
		return 0, fmt.Errorf("truncated option tag")
	}
	if data[offset] == 0 {
		return offset + 1, nil
	}
	offset++

	if offset+4 > len(data) {
		return 0, fmt.Errorf("truncated creator count")
	}
	count := int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4

	const creatorSize = 32 + 1 + 1
	if count > 5 {
		return 0, fmt.Errorf("creator count %d exceeds cap", count)
	}
	if offset+count*creatorSize > len(data) {
		return 0, fmt.Errorf("truncated creators: want %d", count)
	}

	return offset + count*creatorSize, nil
}

func leUint64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}
