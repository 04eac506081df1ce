// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ClipSource resolves a clip's opaque source URI into a file-like byte stream.
// Platform differences (local path, blob reference) live behind this adapter;
// the rest of the pipeline depends only on the interface.
type ClipSource interface {
	Open(sourceURI string) (io.ReadCloser, string, error)
}

// fileClipSource resolves a source URI as a local filesystem path.
type fileClipSource struct{}

// NewFileClipSource returns the local-path resolver.
func NewFileClipSource() ClipSource {
	return fileClipSource{}
}

func (fileClipSource) Open(sourceURI string) (io.ReadCloser, string, error) {
	f, err := os.Open(sourceURI)
	if err != nil {
		return nil, "", fmt.Errorf("opening clip %s: %w", sourceURI, err)
	}
	return f, filepath.Base(sourceURI), nil
}
