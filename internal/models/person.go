package models

import (
	"strings"
	"time"
)

// PersonRecord 人员目录记录（对核心只读）
type PersonRecord struct {
	ID         string
	GivenName  string
	FamilyName string
	ValidFrom  *time.Time
	ValidTo    *time.Time
}

// DisplayName 设备上显示的姓名
func (p *PersonRecord) DisplayName() string {
	return strings.TrimSpace(p.GivenName + " " + p.FamilyName)
}
