package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// cacheKey names one embedding: the model that produced it, the task it was
// produced for and a digest of the input text. Both cache layers use it.
type cacheKey struct {
	model string
	task  string
	hash  string
}

func newCacheKey(modelName, taskType, text string) cacheKey {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	sum := sha256.Sum256([]byte(text))
	return cacheKey{model: modelName, task: taskType, hash: hex.EncodeToString(sum[:])}
}

func (k cacheKey) String() string {
	return k.model + "/" + k.task + "/" + k.hash
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	return append([]float32(nil), values...)
}
