package store

import (
	"encoding/base64"
	"unicode/utf8"
)

// ByteString is the key and value type of every table engine. Offset keys and table names are text,
// so it prints as text when it is valid UTF-8 and as base64 otherwise.
type ByteString []byte

func (bs ByteString) B64() string {
	return base64.StdEncoding.EncodeToString(bs)
}

// ByteStringFromB64 returns nil when k is not valid base64
func ByteStringFromB64(k string) ByteString {
	kb, err := base64.StdEncoding.DecodeString(k)
	if err != nil {
		return nil
	}
	return kb
}

func (bs ByteString) String() string {
	if utf8.Valid(bs) {
		return string(bs)
	}
	return "b64:" + bs.B64()
}
