package tencent

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkerrors "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"
	client "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/dnspod/v20210323"
)

func TestNewRequiresOptions(t *testing.T) {
	_, err := New(map[string]any{
		"access_key_id": "id",
		"domain":        "example.com",
		"subdomain":     "home",
	})
	assert.EqualError(t, err, `provider option "access_key_secret" is required`)
}

func TestNew(t *testing.T) {
	c, err := New(map[string]any{
		"access_key_id":     "id",
		"access_key_secret": "secret",
		"domain":            "example.com",
		"subdomain":         "home",
	})
	assert.NoError(t, err)
	assert.Equal(t, "home.example.com", c.hostname)
}

func TestIsNoRecords(t *testing.T) {
	assert.True(t, isNoRecords(sdkerrors.NewTencentCloudSDKError(noRecordsCode, "no data", "req-1")))
	assert.True(t, isNoRecords(errors.Wrap(sdkerrors.NewTencentCloudSDKError(noRecordsCode, "no data", "req-1"), "describe")))
	assert.False(t, isNoRecords(sdkerrors.NewTencentCloudSDKError("AuthFailure", "denied", "req-2")))
	assert.False(t, isNoRecords(errors.New("boom")))
}

func TestFindRecord(t *testing.T) {
	assert.Nil(t, findRecord(nil, "A"))
	assert.Nil(t, findRecord(&client.DescribeRecordListResponse{}, "A"))

	aaaa, a := "AAAA", "A"
	resp := client.NewDescribeRecordListResponse()
	resp.Response = &client.DescribeRecordListResponseParams{
		RecordList: []*client.RecordListItem{
			{Type: &aaaa},
			nil,
			{Type: &a},
		},
	}

	assert.Equal(t, &a, findRecord(resp, "A").Type)
	assert.Equal(t, &aaaa, findRecord(resp, "AAAA").Type)
	assert.Nil(t, findRecord(resp, "CNAME"))
}

// dnspodCall is the subset of request fields the provider sends.
type dnspodCall struct {
	Action     string
	Domain     string
	Subdomain  string
	SubDomain  string
	RecordType string
	RecordLine string
	Value      string
	RecordID   uint64 `json:"RecordId"`
}

// fakeDNSPod answers DNSPod API actions, keyed on X-TC-Action, from a
// canned record list and records every call it receives.
type fakeDNSPod struct {
	mu      sync.Mutex
	calls   []dnspodCall
	records []map[string]any
}

func (f *fakeDNSPod) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var c dnspodCall
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c.Action = r.Header.Get("X-TC-Action")

	f.mu.Lock()
	f.calls = append(f.calls, c)
	records := f.records
	f.mu.Unlock()

	resp := map[string]any{"RequestId": "req"}
	switch c.Action {
	case "DescribeRecordList":
		if len(records) == 0 {
			resp["Error"] = map[string]any{"Code": noRecordsCode, "Message": "no records"}
			break
		}
		resp["RecordCountInfo"] = map[string]any{"TotalCount": len(records), "ListCount": len(records)}
		resp["RecordList"] = records
	case "CreateRecord":
		resp["RecordId"] = 42
	default:
		resp["RecordId"] = c.RecordID
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"Response": resp})
}

func (f *fakeDNSPod) snapshot() []dnspodCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func actions(calls []dnspodCall) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Action)
	}
	return out
}

func testClient(t *testing.T, fake *fakeDNSPod) *Tencent {
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	c, err := newClient(map[string]any{
		"access_key_id":     "id",
		"access_key_secret": "secret",
		"domain":            "example.com",
		"subdomain":         "home",
		"endpoint":          strings.TrimPrefix(server.URL, "http://"),
	}, "http")
	require.NoError(t, err)
	return c
}

func dnspodRecord(id uint64, recordType, value string) map[string]any {
	return map[string]any{"RecordId": id, "Name": "home", "Type": recordType, "Line": "默认", "Value": value}
}

func TestUpdateCreatesMissingRecord(t *testing.T) {
	fake := &fakeDNSPod{}
	c := testClient(t, fake)

	require.NoError(t, c.Update(netip.MustParseAddr("203.0.113.7")))

	calls := fake.snapshot()
	require.Equal(t, []string{"DescribeRecordList", "CreateRecord"}, actions(calls))
	assert.Equal(t, "example.com", calls[0].Domain)
	assert.Equal(t, "home", calls[0].Subdomain)
	assert.Equal(t, dnspodCall{
		Action:     "CreateRecord",
		Domain:     "example.com",
		SubDomain:  "home",
		RecordType: "A",
		RecordLine: "默认",
		Value:      "203.0.113.7",
	}, calls[1])
}

func TestUpdateSkipsCurrentRecord(t *testing.T) {
	fake := &fakeDNSPod{records: []map[string]any{dnspodRecord(7, "A", "203.0.113.7")}}
	c := testClient(t, fake)

	require.NoError(t, c.Update(netip.MustParseAddr("203.0.113.7")))
	assert.Equal(t, []string{"DescribeRecordList"}, actions(fake.snapshot()))
}

func TestUpdateModifiesStaleRecord(t *testing.T) {
	fake := &fakeDNSPod{records: []map[string]any{dnspodRecord(7, "A", "198.51.100.1")}}
	c := testClient(t, fake)

	require.NoError(t, c.Update(netip.MustParseAddr("203.0.113.7")))

	calls := fake.snapshot()
	require.Equal(t, []string{"DescribeRecordList", "ModifyRecord"}, actions(calls))
	assert.Equal(t, dnspodCall{
		Action:     "ModifyRecord",
		Domain:     "example.com",
		SubDomain:  "home",
		RecordType: "A",
		RecordLine: "默认",
		Value:      "203.0.113.7",
		RecordID:   7,
	}, calls[1])
}

func TestUpdateMatchesRecordType(t *testing.T) {
	fake := &fakeDNSPod{records: []map[string]any{
		dnspodRecord(7, "A", "203.0.113.7"),
		dnspodRecord(8, "AAAA", "2001:db8::1"),
	}}
	c := testClient(t, fake)

	require.NoError(t, c.Update(netip.MustParseAddr("2001:db8::2")))

	calls := fake.snapshot()
	require.Equal(t, []string{"DescribeRecordList", "ModifyRecord"}, actions(calls))
	assert.Equal(t, uint64(8), calls[1].RecordID)
	assert.Equal(t, "AAAA", calls[1].RecordType)
	assert.Equal(t, "2001:db8::2", calls[1].Value)
}

func TestUpdateCreatesWhenOnlyOtherFamilyExists(t *testing.T) {
	fake := &fakeDNSPod{records: []map[string]any{dnspodRecord(7, "A", "203.0.113.7")}}
	c := testClient(t, fake)

	require.NoError(t, c.Update(netip.MustParseAddr("2001:db8::2")))

	calls := fake.snapshot()
	require.Equal(t, []string{"DescribeRecordList", "CreateRecord"}, actions(calls))
	assert.Equal(t, "AAAA", calls[1].RecordType)
}
