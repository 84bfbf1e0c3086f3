package recv

import (
	"fmt"
	"path/filepath"
	"strings"
)

// contentRange is the parsed X-Content-Range header of one chunk.
type contentRange struct {
	Start int64
	End   int64
	Total int64
}

// parseContentRange parses "bytes <start>-<end>/<total>" with
// 0 <= start <= end < total.
func parseContentRange(header string) (contentRange, error) {
	var cr contentRange

	n, err := fmt.Sscanf(header, "bytes %d-%d/%d", &cr.Start, &cr.End, &cr.Total)
	if err != nil || n != 3 {
		return contentRange{}, fmt.Errorf("malformed X-Content-Range %q", header)
	}

	if cr.Start < 0 || cr.End < cr.Start || cr.End >= cr.Total {
		return contentRange{}, fmt.Errorf("X-Content-Range %q out of bounds", header)
	}

	return cr, nil
}

func (cr contentRange) chunkLen() int64 {
	return cr.End - cr.Start + 1
}

// terminal reports whether this chunk raises the received byte count to
// the file's declared size.
func (cr contentRange) terminal() bool {
	return cr.End+1 >= cr.Total
}

// joinSafe joins the sanitised basename of name under dir, refusing any
// path that would escape it. Directories implied by the sender's path are
// ignored; a ".." component is rejected outright.
func joinSafe(dir string, name string) (string, error) {
	// senders may use either separator
	name = strings.ReplaceAll(name, "\\", "/")

	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", fmt.Errorf("path traversal in file name %q", name)
		}
	}

	base := filepath.Base(filepath.FromSlash(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "", fmt.Errorf("empty file name %q", name)
	}

	dst := filepath.Join(dir, base)

	// belt and braces: the joined path must stay under dir
	rel, err := filepath.Rel(dir, dst)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path traversal in file name %q", name)
	}

	return dst, nil
}
