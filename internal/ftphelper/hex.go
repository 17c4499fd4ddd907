package ftphelper

import (
	"encoding/hex"

	"github.com/helperd/helperd/internal/modules"
)

func decodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, modules.NewError(modules.KindInvalidParams, "content_hex: %v", err)
	}
	return b, nil
}

func encodeHex(b []byte) string {
	return hex.EncodeToString(b)
}
