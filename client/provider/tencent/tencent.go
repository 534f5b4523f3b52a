package tencent

import (
	stderrors "errors"
	"fmt"
	"net/netip"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	sdkerrors "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/regions"
	client "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/dnspod/v20210323"

	"ipwatch/client/provider"
)

const noRecordsCode = "ResourceNotFound.NoDataOfRecord"

type Tencent struct {
	c         *client.Client
	domain    string
	subdomain string
	hostname  string
}

// New builds a client from a ddns_provider block with access_key_id,
// access_key_secret, domain, subdomain and an optional endpoint.
func New(config map[string]any) (*Tencent, error) {
	return newClient(config, "HTTPS")
}

func newClient(config map[string]any, scheme string) (*Tencent, error) {
	var opts [4]string
	for i, key := range []string{"access_key_id", "access_key_secret", "domain", "subdomain"} {
		v, err := provider.Required(config, key)
		if err != nil {
			return nil, err
		}
		opts[i] = v
	}
	accessKeyID, accessKeySecret, domain, subdomain := opts[0], opts[1], opts[2], opts[3]

	credential := common.NewCredential(accessKeyID, accessKeySecret)
	prof := profile.NewClientProfile()
	prof.HttpProfile.Endpoint = provider.Optional(config, "endpoint", "")
	prof.HttpProfile.Scheme = scheme
	c, err := client.NewClient(credential, regions.Shanghai, prof)
	if err != nil {
		return nil, errors.Wrap(err, "spawn tencent dnspod client")
	}

	tencent := &Tencent{
		c:         c,
		domain:    domain,
		subdomain: subdomain,
		hostname:  fmt.Sprintf("%s.%s", subdomain, domain),
	}
	log.Info().Msgf("Tencent DDNS client ready: %s", tencent.hostname)
	return tencent, nil
}

func (c *Tencent) Update(addr netip.Addr) error {
	recordType := provider.RecordType(addr)
	log.Debug().Msgf("Updating Tencent record %s %s -> %s", recordType, c.hostname, addr)

	req := client.NewDescribeRecordListRequest()
	req.Domain = common.StringPtr(c.domain)
	req.Subdomain = common.StringPtr(c.subdomain)
	resp, err := c.c.DescribeRecordList(req)
	if err != nil && !isNoRecords(err) {
		return errors.Wrap(err, "describe record list")
	}

	record := findRecord(resp, recordType)
	if record == nil {
		create := client.NewCreateRecordRequest()
		create.Domain = common.StringPtr(c.domain)
		create.SubDomain = common.StringPtr(c.subdomain)
		create.RecordType = common.StringPtr(recordType)
		create.RecordLine = common.StringPtr("默认")
		create.Value = common.StringPtr(addr.String())
		if _, err := c.c.CreateRecord(create); err != nil {
			return errors.Wrap(err, "create record")
		}
		log.Info().Msgf("Tencent record created: %s = %s", c.hostname, addr)
		return nil
	}

	current := ""
	if record.Value != nil {
		current = *record.Value
	}
	if current == addr.String() {
		log.Info().Msgf("Tencent record already up to date: %s = %s", c.hostname, addr)
		return nil
	}

	modify := client.NewModifyRecordRequest()
	modify.Domain = common.StringPtr(c.domain)
	modify.RecordId = record.RecordId
	modify.RecordLine = record.Line
	modify.RecordType = record.Type
	modify.SubDomain = record.Name
	modify.Value = common.StringPtr(addr.String())
	if _, err := c.c.ModifyRecord(modify); err != nil {
		return errors.Wrap(err, "modify record")
	}

	log.Info().Msgf("Tencent record updated: %s %s -> %s", c.hostname, current, addr)
	return nil
}

func isNoRecords(err error) bool {
	var sdkErr *sdkerrors.TencentCloudSDKError
	return stderrors.As(err, &sdkErr) && sdkErr.GetCode() == noRecordsCode
}

func findRecord(resp *client.DescribeRecordListResponse, recordType string) *client.RecordListItem {
	if resp == nil || resp.Response == nil {
		return nil
	}
	for _, r := range resp.Response.RecordList {
		if r != nil && r.Type != nil && *r.Type == recordType {
			return r
		}
	}
	return nil
}
