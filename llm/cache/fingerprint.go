package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/BaSui01/biaslens/llm"
)

const (
	// KeyPrefix 常规条目键前缀
	KeyPrefix = "bias:analysis:"
	// LastSuccessKeyPrefix 最近成功条目键前缀
	LastSuccessKeyPrefix = "bias:last:"
	// DefaultProviderKey is used in place of an empty provider name.
	DefaultProviderKey = "default"
)

// Fingerprint derives the normal cache key from the content and provider.
// An empty provider is keyed as "default".
func Fingerprint(req *llm.AnalysisRequest, provider string) string {
	if strings.TrimSpace(provider) == "" {
		provider = DefaultProviderKey
	}
	return KeyPrefix + digest(req.Title, req.Body, req.Source, provider)
}

// LastSuccessFingerprint derives the provider-independent key.
func LastSuccessFingerprint(req *llm.AnalysisRequest) string {
	return LastSuccessKeyPrefix + digest(req.Title, req.Body, req.Source)
}

// digest 长度前缀避免字段拼接歧义，取前 16 字节
func digest(fields ...string) string {
	h := sha256.New()
	var n [8]byte
	for _, f := range fields {
		binary.BigEndian.PutUint64(n[:], uint64(len(f)))
		h.Write(n[:])
		h.Write([]byte(f))
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
