package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// KeyMaterial is everything that participates in cache-key derivation.
// Changing any field changes the key; nothing else can.
type KeyMaterial struct {
	StepID        string         `json:"step_id"`
	Config        map[string]any `json:"config"`
	Inputs        map[string]any `json:"inputs"`
	EngineVersion string         `json:"engine_version"`
	ProfileName   string         `json:"profile_name"`
}

// DeriveKey computes the content-addressed key for a step invocation. The
// material is canonicalized (JSON with sorted object keys) before hashing,
// so irrelevant map ordering and whitespace differences cannot produce
// distinct keys. A declared fragment namespaces the key but never replaces
// the input hash.
func DeriveKey(material KeyMaterial, fragment string) (string, error) {
	canonical, err := json.Marshal(material)
	if err != nil {
		return "", fmt.Errorf("canonicalizing cache key material: %w", err)
	}
	sum := sha256.Sum256(canonical)
	digest := hex.EncodeToString(sum[:])
	if fragment != "" {
		return fragment + ":" + digest, nil
	}
	return digest, nil
}
