package controller

import "github.com/yuriy-kovalchuk/yk-dns-sync/internal/record"

func recordOf(value, fqdn string) record.Record {
	return record.Record{Value: value, FQDN: fqdn}
}
