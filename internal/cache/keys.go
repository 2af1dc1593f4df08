package cache

import "fmt"

// KeyVersion holds the fingerprint of the catalogue the cached entries were built from
const KeyVersion = "catalogue:version"

func KeyBusInfo(version, bus string) string {
	return fmt.Sprintf("v:%s:bus:%s", version, bus)
}

// KeyVersionPattern matches every entry of one catalogue version
func KeyVersionPattern(version string) string {
	return fmt.Sprintf("v:%s:*", version)
}
