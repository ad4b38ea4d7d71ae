package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/darkermemo/sim6-sub001/internal/cim"
)

func TestParse_JSON(t *testing.T) {
	res := Parse([]byte(`{"message":"login ok","user_name":"alice"}`))
	require.Equal(t, SourceJSON, res.SourceType)
	require.Equal(t, cim.StatusSuccess, res.Status)
	require.Equal(t, "alice", res.Fields["user_name"])
}

func TestParse_Syslog(t *testing.T) {
	res := Parse([]byte("<34>Oct 11 22:14:15 mymachine su: 'su root' failed for lonvick"))
	require.Equal(t, SourceSyslog, res.SourceType)
	require.Equal(t, cim.StatusPartial, res.Status)
	require.Equal(t, "mymachine", res.Fields["host_name"])
	require.Equal(t, "su", res.Fields["source"])
	require.Equal(t, "critical", res.Fields["severity"])
}

func TestParse_SyslogS2(t *testing.T) {
	res := Parse([]byte("<134>Jan 1 12:00:00 server01 nginx: 192.168.1.100 GET /api/health"))
	require.Equal(t, cim.StatusPartial, res.Status)
	require.Equal(t, "server01", res.Fields["host_name"])
	require.Equal(t, "nginx", res.Fields["source"])
	require.Equal(t, "192.168.1.100 GET /api/health", res.Fields["message"])
}

func TestParse_KV(t *testing.T) {
	res := Parse([]byte(`src=10.0.0.1 dst=10.0.0.2 act=deny msg="blocked connection"`))
	require.Equal(t, SourceKV, res.SourceType)
	require.Equal(t, cim.StatusPartial, res.Status)
	require.Equal(t, "10.0.0.1", res.Fields["src"])
	require.Equal(t, "blocked connection", res.Fields["msg"])
}

func TestParse_CEF(t *testing.T) {
	raw := []byte(`CEF:0|Acme|Firewall|1.0|100|Blocked traffic|5|src=10.0.0.1 dst=10.0.0.2 act=deny`)
	res := Parse(raw)
	require.Equal(t, SourceVendor, res.SourceType)
	require.Equal(t, "cef", res.VendorName)
	require.Equal(t, "10.0.0.1", res.Fields["source_ip"])
	require.Equal(t, "deny", res.Fields["action"])
}

func TestParse_LEEF(t *testing.T) {
	raw := []byte("LEEF:2.0|Acme|VPN|1.0|200|src=10.0.0.5\tdst=10.0.0.6\tact=allow")
	res := Parse(raw)
	require.Equal(t, SourceVendor, res.SourceType)
	require.Equal(t, "leef", res.VendorName)
	require.Equal(t, "10.0.0.5", res.Fields["source_ip"])
}

func TestParse_VendorCSV(t *testing.T) {
	RegisterCSVProfile("acme_fw_v1", []string{"tag", "source_ip", "destination_ip", "action"})
	defer delete(CSVProfiles, "acme_fw_v1")

	res := Parse([]byte("acme_fw_v1,10.1.1.1,10.1.1.2,deny"))
	require.Equal(t, SourceVendor, res.SourceType)
	require.Equal(t, "vendor_csv", res.VendorName)
	require.Equal(t, "10.1.1.2", res.Fields["destination_ip"])
}

func TestParse_FallbackExtractsIPAndLevel(t *testing.T) {
	res := Parse([]byte("unparseable garbage from 192.168.1.5 ERROR something broke"))
	require.Equal(t, SourceFreeText, res.SourceType)
	require.Equal(t, cim.StatusFailed, res.Status)
	require.Equal(t, "192.168.1.5", res.Fields["source_ip"])
	require.Equal(t, "ERROR", res.Fields["severity"])
	require.Equal(t, "Unstructured format - stored as message", res.Warning)
}

func TestParse_FallbackS3(t *testing.T) {
	res := Parse([]byte("This is just a plain log message"))
	require.Equal(t, SourceFreeText, res.SourceType)
	require.Equal(t, cim.StatusFailed, res.Status)
	require.Equal(t, "Unstructured format - stored as message", res.Warning)
	require.Equal(t, "This is just a plain log message", res.Fields["message"])
}

func TestDeriveOutcome(t *testing.T) {
	require.Equal(t, "success", DeriveOutcome("allow"))
	require.Equal(t, "success", DeriveOutcome("PERMIT"))
	require.Equal(t, "failure", DeriveOutcome("block"))
	require.Equal(t, "unknown-verb", DeriveOutcome("unknown-verb"))
}

func TestCanonicalFieldName(t *testing.T) {
	require.Equal(t, "source_ip", CanonicalFieldName("src"))
	require.Equal(t, "destination_port", CanonicalFieldName("dpt"))
	require.Equal(t, "not_an_alias", CanonicalFieldName("not_an_alias"))
}
