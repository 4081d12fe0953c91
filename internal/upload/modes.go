package upload

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/emrpipe/emrpipe/internal/aws"
)

// Mode decides whether an item is uploaded when its key may already exist.
type Mode string

const (
	// ModeAdd uploads only keys that do not exist.
	ModeAdd Mode = "add"
	// ModeStupid uploads every key without checking.
	ModeStupid Mode = "stupid"
	// ModeUpdate uploads keys that do not exist or whose content changed.
	ModeUpdate Mode = "update"
)

// ParseMode validates a put mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeAdd, ModeStupid, ModeUpdate:
		return m, nil
	case "":
		return ModeUpdate, nil
	}
	return "", fmt.Errorf("unknown put mode %q (want add, stupid or update)", s)
}

// ContentUnchanged reports whether the bytes about to be uploaded match
// the stored object.
type ContentUnchanged func(local []byte, remote aws.ObjectInfo) bool

// ETagMatches compares the MD5 of local with the object's ETag. ETags of
// multipart uploads are not MD5 digests and never match.
func ETagMatches(local []byte, remote aws.ObjectInfo) bool {
	sum := md5.Sum(local)
	return hex.EncodeToString(sum[:]) == strings.Trim(remote.ETag, `"`)
}
