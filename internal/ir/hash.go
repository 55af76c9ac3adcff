package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests. The version suffix allows a later
// algorithm change without colliding with stored digests.
const (
	DomainEdit     = "stackline/edit/v1"
	DomainSnapshot = "stackline/snapshot/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EditDigest computes the content-addressed identity of an edit record.
func EditDigest(rec EditRecord) (string, error) {
	canonical, err := MarshalCanonical(IRObject{
		"seq":  IRInt(rec.Seq),
		"op":   IRString(rec.Op),
		"args": rec.Args,
	})
	if err != nil {
		return "", fmt.Errorf("EditDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEdit, canonical), nil
}

// StackDigest hashes a per-track ordering of element ids together with the
// playhead. Two snapshots with equal digests resolve identically.
func StackDigest(position int64, stacks map[TrackID][]ElementID) (string, error) {
	tracks := make(IRObject, len(stacks))
	for id, elems := range stacks {
		tracks[string(id)] = StringArray(elems)
	}
	canonical, err := MarshalCanonical(IRObject{
		"position": IRInt(position),
		"stacks":   tracks,
	})
	if err != nil {
		return "", fmt.Errorf("StackDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}
