package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// cefPattern is ArcSight CEF's pipe-delimited header, grounded on
// transformation.rs's CefParser::new regex (CEF:version|vendor|product|...).
var cefPattern = regexp.MustCompile(`^CEF:(\d+)\|([^|]*)\|([^|]*)\|([^|]*)\|([^|]*)\|([^|]*)\|([^|]*)\|(.*)$`)

type cefGrammar struct{}

func (cefGrammar) Name() string { return "cef" }

func (cefGrammar) Detect(raw []byte) bool { return bytes.HasPrefix(raw, []byte("CEF:")) }

func (cefGrammar) Parse(raw []byte) (map[string]interface{}, error) {
	m := cefPattern.FindSubmatch(raw)
	if m == nil {
		return nil, fmt.Errorf("cef: header did not match CEF:version|vendor|product|... grammar")
	}
	fields := map[string]interface{}{
		"cef_version":      string(m[1]),
		"device_vendor":    string(m[2]),
		"device_product":   string(m[3]),
		"device_version":   string(m[4]),
		"signature_id":     string(m[5]),
		"message":          string(m[6]),
	}
	if sev, err := strconv.Atoi(strings.TrimSpace(string(m[7]))); err == nil {
		fields["severity"] = sev
	} else if s := strings.TrimSpace(string(m[7])); s != "" {
		fields["severity"] = s
	}

	for key, val := range parseCEFExtension(string(m[8])) {
		fields[CanonicalFieldName(key)] = val
	}
	return fields, nil
}

// parseCEFExtension splits CEF's trailing "key=value key=value" extension
// field, tolerating spaces inside unescaped values by splitting on the next
// "key=" boundary rather than on whitespace alone.
func parseCEFExtension(ext string) map[string]string {
	out := map[string]string{}
	tokens := cefExtensionPattern.FindAllStringSubmatchIndex(ext, -1)
	for i, tok := range tokens {
		key := ext[tok[2]:tok[3]]
		valStart := tok[3] + 1
		valEnd := len(ext)
		if i+1 < len(tokens) {
			valEnd = tokens[i+1][0]
		}
		out[key] = strings.TrimSpace(ext[valStart:valEnd])
	}
	return out
}

var cefExtensionPattern = regexp.MustCompile(`([A-Za-z0-9_]+)=`)
