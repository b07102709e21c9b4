package models

import (
	"fmt"
	"strings"
)

// NotificationNature 通知性质（按告警类别配置通知方式）
type NotificationNature string

const (
	NatureFreezerTemperatureAlert NotificationNature = "FREEZER_TEMPERATURE_ALERT"
	NatureEquipmentAlert          NotificationNature = "EQUIPMENT_ALERT"
	NatureInventoryAlert          NotificationNature = "INVENTORY_ALERT"
)

// AlertNatures 告警相关的全部通知性质
var AlertNatures = []NotificationNature{
	NatureFreezerTemperatureAlert,
	NatureEquipmentAlert,
	NatureInventoryAlert,
}

// ParseNotificationNature 解析通知性质；未知值返回错误
func ParseNotificationNature(s string) (NotificationNature, error) {
	for _, n := range AlertNatures {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown notification nature: %q", s)
}

// NatureForAlertType 告警类型 → 通知性质；SAMPLE_TRACKING / OTHER 没有对应性质
func NatureForAlertType(t AlertType) (NotificationNature, bool) {
	switch t {
	case AlertTypeFreezerTemperature:
		return NatureFreezerTemperatureAlert, true
	case AlertTypeEquipmentFailure:
		return NatureEquipmentAlert, true
	case AlertTypeInventoryLow:
		return NatureInventoryAlert, true
	default:
		return "", false
	}
}

// NotificationMethod 通知方式
type NotificationMethod string

const (
	MethodEmail NotificationMethod = "EMAIL"
	MethodSMS   NotificationMethod = "SMS"
)

// NotificationPersonType 通知对象类型
type NotificationPersonType string

const (
	PersonTypeProvider NotificationPersonType = "PROVIDER"
	PersonTypePatient  NotificationPersonType = "PATIENT"
)

// NotificationConfigOption 通知配置（每个 nature × method 一行）
type NotificationConfigOption struct {
	ID                 int64                  `json:"id"`
	Nature             NotificationNature     `json:"notification_nature"`
	Method             NotificationMethod     `json:"notification_method"`
	PersonType         NotificationPersonType `json:"notification_person_type"`
	Active             bool                   `json:"active"`
	AdditionalContacts string                 `json:"additional_contacts"` // 逗号分隔，作为邮件 BCC
}

// BCCs 解析附加联系人列表
func (o *NotificationConfigOption) BCCs() []string {
	if strings.TrimSpace(o.AdditionalContacts) == "" {
		return nil
	}
	var out []string
	for _, c := range strings.Split(o.AdditionalContacts, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// SiteInformation 站点配置项（对应 site_information 表）
type SiteInformation struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	ValueType string `json:"value_type"` // boolean / text
}
