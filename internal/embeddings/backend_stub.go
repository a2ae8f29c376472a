//go:build !onnx
// +build !onnx

package embeddings

import (
	"github.com/caresight/docguard/internal/logger"
)

// Stub used when the 'onnx' build tag is not set. The factory falls back to
// the hash service when this returns nil.
func NewTransformerBackend(log *logger.Logger, modelPath string, maxLength int) TransformerBackend {
	return nil
}
