package vfsio

import "path/filepath"

func globMatch(pattern, uri string) (bool, error) {
	return filepath.Match(pattern, filepath.Base(uri))
}
