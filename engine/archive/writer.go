package archive

import (
	"io"
	"sort"

	"github.com/klauspost/compress/zip"
)

// Write stores files into a new container on w. It is used by tooling and
// tests to produce bundles the loader can open.
func Write(w io.Writer, files map[string][]byte) error {
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)

	zw := zip.NewWriter(w)
	for _, n := range names {
		fw, err := zw.Create(n)
		if err != nil {
			return err
		}
		if _, err := fw.Write(files[n]); err != nil {
			return err
		}
	}
	return zw.Close()
}
