package upload

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/emrpipe/emrpipe/internal/aws"
)

// CannedACLs lists the ACL names accepted by --grant.
var CannedACLs = []string{
	"private", "public-read", "public-read-write", "authenticated-read",
	"aws-exec-read", "bucket-owner-read", "bucket-owner-full-control", "log-delivery-write",
}

// ParseHeaders maps "Name:Value" pairs onto put options. Content-Type,
// Content-Encoding, Cache-Control, Content-Disposition, Content-Language,
// x-amz-acl and x-amz-meta-* headers are supported.
func ParseHeaders(headers []string) (aws.PutOptions, error) {
	var opts aws.PutOptions
	for _, h := range headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return opts, fmt.Errorf("invalid header %q (want NAME:VALUE)", h)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)

		switch {
		case name == "content-type":
			opts.ContentType = value
		case name == "content-encoding":
			opts.ContentEncoding = value
		case name == "cache-control":
			opts.CacheControl = value
		case name == "content-disposition":
			opts.ContentDisposition = value
		case name == "content-language":
			opts.ContentLanguage = value
		case name == "x-amz-acl":
			opts.ACL = value
		case strings.HasPrefix(name, "x-amz-meta-"):
			if opts.Metadata == nil {
				opts.Metadata = make(map[string]string)
			}
			opts.Metadata[strings.TrimPrefix(name, "x-amz-meta-")] = value
		default:
			return opts, fmt.Errorf("unsupported header %q", name)
		}
	}
	return opts, nil
}

// ValidateGrant checks acl against CannedACLs. Empty is allowed.
func ValidateGrant(acl string) error {
	if acl == "" {
		return nil
	}
	for _, a := range CannedACLs {
		if a == acl {
			return nil
		}
	}
	return fmt.Errorf("unknown canned ACL %q", acl)
}

// contentType resolves the --content-type option for a path.
func contentType(option, p string) string {
	if option != "guess" {
		return option
	}
	return mime.TypeByExtension(filepath.Ext(p))
}
