package content

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// KeySpec names the logical slot an asset fills. The storage key it
// produces is content-addressed: identical bytes under the same spec
// always map to the same key, and changed bytes receive a new key rather
// than overwriting history.
type KeySpec struct {
	Namespace string
	EntityID  string
	Kind      string
}

func (k KeySpec) Validate() error {
	if k.Namespace == "" {
		return fmt.Errorf("key spec: namespace is required")
	}
	if k.EntityID == "" {
		return fmt.Errorf("key spec: entity id is required")
	}
	if k.Kind == "" {
		return fmt.Errorf("key spec: kind is required")
	}
	return nil
}

// Prefix is the directory portion of any key this KeySpec produces. Manifest
// reuse compares it against a cached entry's key to detect namespace
// migrations.
func (k KeySpec) Prefix() string {
	return k.Namespace + "/" + k.EntityID + "/"
}

// Address hashes data and builds its storage key:
// <namespace>/<entityID>/<kind>-<sha256>.<ext>.
func Address(data []byte, spec KeySpec, contentType string) (key, sum string, err error) {
	if err := spec.Validate(); err != nil {
		return "", "", err
	}
	ext := ExtensionFor(contentType)
	if ext == "" {
		return "", "", fmt.Errorf("no extension for content type %q", contentType)
	}

	sum = SumSHA256(data)
	key = fmt.Sprintf("%s%s-%s.%s", spec.Prefix(), spec.Kind, sum, ext)
	return key, sum, nil
}

// SumSHA256 returns the lowercase hex sha256 of data.
func SumSHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
