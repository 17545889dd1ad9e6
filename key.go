package deployer

import (
	"fmt"
	"strconv"
)

// Trigger selects the signal that changes an asset's object key, forcing a
// re-upload. One Deployer uses one trigger for its whole lifetime.
type Trigger string

const (
	// TriggerModTime versions keys by the asset's last-modified unix time.
	TriggerModTime Trigger = "filemtime"
	// TriggerMD5 versions keys by the hex MD5 digest of the contents.
	TriggerMD5 Trigger = "md5"
	// TriggerSHA1 versions keys by the hex SHA-1 digest of the contents.
	TriggerSHA1 Trigger = "sha1"
)

// cacheKeyPrefix namespaces this deployer's entries inside a shared
// key-value cache so they cannot collide with other subsystems.
const cacheKeyPrefix = "ph_awss3_"

// ParseTrigger maps a configuration value to a Trigger. Unset or
// unrecognised values fall back to TriggerModTime.
func ParseTrigger(value string) Trigger {
	switch Trigger(value) {
	case TriggerMD5:
		return TriggerMD5
	case TriggerSHA1:
		return TriggerSHA1
	default:
		return TriggerModTime
	}
}

// ObjectKey derives the bucket key for an asset:
// "<filename>_<version-suffix>" plus ".<extension>" when the asset has an
// extension. The derivation is deterministic for a given asset state, which
// is what makes the remote existence check meaningful.
func ObjectKey(a Asset, trigger Trigger) (string, error) {
	if a == nil {
		return "", fmt.Errorf("nil asset")
	}

	var suffix string
	switch trigger {
	case TriggerMD5:
		digest, err := a.MD5()
		if err != nil {
			return "", err
		}
		suffix = digest
	case TriggerSHA1:
		digest, err := a.SHA1()
		if err != nil {
			return "", err
		}
		suffix = digest
	default:
		suffix = strconv.FormatInt(a.ModTime().Unix(), 10)
	}

	key := a.Filename() + "_" + suffix
	if ext := a.Extension(); ext != "" {
		key += "." + ext
	}
	return key, nil
}

// CacheKey maps an object key into the deployer's reserved cache namespace.
func CacheKey(objectKey string) string {
	return cacheKeyPrefix + objectKey
}
