package models

import "time"

// IncomingEvent 设备推送的原始事件（未解析）
type IncomingEvent struct {
	ID          string
	Body        []byte
	ContentType string
	SourceAddr  string
	ReceivedAt  time.Time
}

// EventKind 分类结果类型
type EventKind int

const (
	EventUnknown EventKind = iota
	EventHeartbeat
	EventAccessGranted
	EventAccessDenied
	EventFiltered
)

func (k EventKind) String() string {
	switch k {
	case EventHeartbeat:
		return "heartbeat"
	case EventAccessGranted:
		return "access_granted"
	case EventAccessDenied:
		return "access_denied"
	case EventFiltered:
		return "filtered"
	default:
		return "unknown"
	}
}

// AccessEvent 门禁控制器事件字段（嵌套或平铺两种形态解析后的统一表示）
type AccessEvent struct {
	MajorType  int
	MinorType  int
	DeviceIP   string
	DateTime   string
	EmployeeNo string
	Name       string
	VerifyMode string
}

// ParsedEvent 分类后的事件
// Access 仅在 granted/denied/filtered 时非 nil；LogEntry 仅在 granted/denied 时非空
type ParsedEvent struct {
	Kind     EventKind
	DeviceIP string
	Access   *AccessEvent
	LogEntry string
}
