package crawler

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// digestChunkSize is the read size used when digesting archive members.
const digestChunkSize = 4096

// DigestReader consumes r to exhaustion, computing SHA-1 and SHA-256 in a
// single pass. Returns the byte count and lowercase hex digests. A read
// error is returned as-is; the caller treats it as fatal for the enclosing
// archive.
func DigestReader(r io.Reader) (size int64, sha1hex, sha256hex string, err error) {
	h1 := sha1.New()
	h256 := sha256.New()

	buf := make([]byte, digestChunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			h1.Write(buf[:n])
			h256.Write(buf[:n])
			size += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return 0, "", "", rerr
		}
	}

	return size, hex.EncodeToString(h1.Sum(nil)), hex.EncodeToString(h256.Sum(nil)), nil
}
