package embedding

import "go.uber.org/zap"

// New returns an ONNX embedder for modelPath wrapped in a cache of cacheSize.
// When the model cannot be loaded it falls back to MockEmbedder and logs a warning.
func New(modelPath string, dimensions, maxTokens, cacheSize int, logger *zap.Logger) Embedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	var e Embedder
	onnx, err := NewONNXEmbedder(modelPath, dimensions, maxTokens)
	if err != nil {
		logger.Warn("ONNX embedder unavailable, using hashing embedder",
			zap.String("model_path", modelPath),
			zap.Error(err))
		e = NewMockEmbedder(dimensions)
	} else {
		e = onnx
	}
	return WithCache(e, cacheSize)
}
