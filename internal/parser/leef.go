package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// leefPattern is IBM QRadar's LEEF header:
// LEEF:Version|Vendor|Product|Version|EventID|[key=value...].
var leefPattern = regexp.MustCompile(`^LEEF:([\d.]+)\|([^|]*)\|([^|]*)\|([^|]*)\|([^|]*)\|(.*)$`)

type leefGrammar struct{}

func (leefGrammar) Name() string { return "leef" }

func (leefGrammar) Detect(raw []byte) bool { return bytes.HasPrefix(raw, []byte("LEEF:")) }

func (leefGrammar) Parse(raw []byte) (map[string]interface{}, error) {
	m := leefPattern.FindSubmatch(raw)
	if m == nil {
		return nil, fmt.Errorf("leef: header did not match LEEF:version|vendor|product|... grammar")
	}
	fields := map[string]interface{}{
		"leef_version":   string(m[1]),
		"device_vendor":  string(m[2]),
		"device_product": string(m[3]),
		"device_version": string(m[4]),
		"signature_id":   string(m[5]),
	}

	attrs := string(m[6])
	sep := "\t"
	if !strings.Contains(attrs, sep) {
		sep = "|"
	}
	for _, pair := range strings.Split(attrs, sep) {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		fields[CanonicalFieldName(strings.TrimSpace(kv[0]))] = strings.TrimSpace(kv[1])
	}
	return fields, nil
}
