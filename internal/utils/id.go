package utils

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateID returns a prefixed random identifier such as "oplog_4k2j9x0a1b3c".
func GenerateID(prefix string) string {
	id, err := gonanoid.Generate(idAlphabet, 16)
	if err != nil {
		panic(err)
	}
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
