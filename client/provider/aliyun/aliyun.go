package aliyun

import (
	"fmt"
	"net/netip"
	"slices"

	alidns20150109 "github.com/alibabacloud-go/alidns-20150109/v4/client"
	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	"github.com/alibabacloud-go/tea/tea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"ipwatch/client/provider"
)

const defaultEndpoint = "alidns.aliyuncs.com"

type record = alidns20150109.DescribeDomainRecordsResponseBodyDomainRecordsRecord

type AliyunDDNSClient struct {
	client *alidns20150109.Client

	domain    string
	recordKey string
	hostname  string
}

// New builds a client from a ddns_provider block with access_key_id,
// access_key_secret, domain, subdomain and an optional endpoint.
func New(conf map[string]any) (*AliyunDDNSClient, error) {
	return newClient(conf, "https")
}

func newClient(conf map[string]any, protocol string) (*AliyunDDNSClient, error) {
	var opts [4]string
	for i, key := range []string{"access_key_id", "access_key_secret", "domain", "subdomain"} {
		v, err := provider.Required(conf, key)
		if err != nil {
			return nil, err
		}
		opts[i] = v
	}
	secretID, secretKey, domain, recordKey := opts[0], opts[1], opts[2], opts[3]

	aliyun, err := alidns20150109.NewClient(&openapi.Config{
		AccessKeyId:     tea.String(secretID),
		AccessKeySecret: tea.String(secretKey),
		Endpoint:        tea.String(provider.Optional(conf, "endpoint", defaultEndpoint)),
		Protocol:        tea.String(protocol),
	})
	if err != nil {
		return nil, errors.Wrap(err, "spawn aliyun ddns client")
	}

	client := &AliyunDDNSClient{
		client:    aliyun,
		domain:    domain,
		recordKey: recordKey,
		hostname:  fmt.Sprintf("%s.%s", recordKey, domain),
	}
	log.Info().Msgf("Aliyun DDNS client ready: %s", client.hostname)
	return client, nil
}

// Update makes ip the only record of its type for the hostname: it keeps a
// record already holding ip or rewrites the first one, then deletes the rest.
func (c *AliyunDDNSClient) Update(ip netip.Addr) error {
	recordType := provider.RecordType(ip)
	log.Debug().Msgf("Updating Aliyun record %s %s -> %s", recordType, c.hostname, ip)

	resp, err := c.client.DescribeDomainRecords(&alidns20150109.DescribeDomainRecordsRequest{
		DomainName: tea.String(c.domain),
		RRKeyWord:  tea.String(c.recordKey),
		Type:       tea.String(recordType),
	})
	if err != nil {
		return errors.Wrap(err, "describe domain records")
	}

	var records []*record
	if resp.Body != nil && resp.Body.DomainRecords != nil {
		records = resp.Body.DomainRecords.Record
	}

	if len(records) == 0 {
		_, err = c.client.AddDomainRecord(&alidns20150109.AddDomainRecordRequest{
			DomainName: tea.String(c.domain),
			RR:         tea.String(c.recordKey),
			Type:       tea.String(recordType),
			Value:      tea.String(ip.String()),
		})
		if err != nil {
			return errors.Wrap(err, "add domain record")
		}
		log.Info().Msgf("Aliyun record created: %s = %s", c.hostname, ip)
		return nil
	}

	idx := slices.IndexFunc(records, func(r *record) bool {
		return tea.StringValue(r.Value) == ip.String()
	})
	if idx == -1 {
		existing := records[0]
		_, err = c.client.UpdateDomainRecord(&alidns20150109.UpdateDomainRecordRequest{
			RecordId: existing.RecordId,
			RR:       tea.String(c.recordKey),
			Type:     tea.String(recordType),
			Value:    tea.String(ip.String()),
		})
		if err != nil {
			return errors.Wrap(err, "update domain record")
		}
		log.Info().Msgf("Aliyun record updated: %s %s -> %s", c.hostname, tea.StringValue(existing.Value), ip)
		idx = 0
	} else {
		log.Info().Msgf("Aliyun record already up to date: %s = %s", c.hostname, ip)
	}

	for i, r := range records {
		if i == idx {
			continue
		}
		_, err := c.client.DeleteDomainRecord(&alidns20150109.DeleteDomainRecordRequest{
			RecordId: r.RecordId,
		})
		if err != nil {
			log.Warn().Err(err).Msgf("Failed to delete duplicate Aliyun record %s", tea.StringValue(r.RecordId))
			continue
		}
		log.Info().Msgf("Aliyun duplicate record deleted: %s (%s)", tea.StringValue(r.RecordId), tea.StringValue(r.Value))
	}
	return nil
}
