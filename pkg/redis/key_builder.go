package redis

import "fmt"

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	if environment == "development" || environment == "staging" {
		prefix = "staging"
	}
	if environment == "test" {
		prefix = "test"
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

// Document store key builders
func (kb *KeyBuilder) KeyDocument(collection, id string) string {
	return kb.BuildKey(fmt.Sprintf(KeyDocument, collection, id))
}

func (kb *KeyBuilder) KeyCollectionIndex(collection string) string {
	return kb.BuildKey(fmt.Sprintf(KeyCollectionIndex, collection))
}

func (kb *KeyBuilder) KeyCounter(collection, id string) string {
	return kb.BuildKey(fmt.Sprintf(KeyCounter, collection, id))
}

// Results cache key builders
func (kb *KeyBuilder) KeyResults(electionID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyResults, electionID))
}

// Audit and notification key builders
func (kb *KeyBuilder) KeyAuditStream(stream string) string {
	return kb.BuildKey(fmt.Sprintf(KeyAuditStream, stream))
}

func (kb *KeyBuilder) KeyChannel(channel string) string {
	return kb.BuildKey(channel)
}
