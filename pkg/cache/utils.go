package cache

import (
	"fmt"
	"strings"
)

// GenerateKey joins a prefix and id into a colon-separated key.
func GenerateKey(prefix, id string) string {
	return prefix + ":" + id
}

// GenerateKeyWithParams builds a colon-separated key from a prefix and
// any number of parameters, formatted with %v.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, param := range params {
		fmt.Fprintf(&b, ":%v", param)
	}
	return b.String()
}

// BuildPattern turns a key prefix into the glob DeleteByPattern expects.
func BuildPattern(prefix string) string {
	return prefix + "*"
}
