// Package classifier turns extracted device JSON into typed events and builds
// the system log entries persisted for granted/denied access.
package classifier

import (
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"hikbridge/internal/models"
)

// Access events worth persisting: major 5 with minor 75 (granted) / 76 (denied).
const (
	MajorAccessControl = 5
	MinorAccessGranted = 75
	MinorAccessDenied  = 76
)

const logTimeLayout = "20060102T150405"

// accessFields are the fields of an AccessControllerEvent payload. Devices
// send them either nested under "AccessControllerEvent" or flat at top level.
type accessFields struct {
	MajorEventType    *int   `json:"majorEventType"`
	SubEventType      *int   `json:"subEventType"`
	EmployeeNoString  string `json:"employeeNoString"`
	Name              string `json:"name"`
	CurrentVerifyMode string `json:"currentVerifyMode"`
}

type eventEnvelope struct {
	EventType             string        `json:"eventType"`
	IPAddress             string        `json:"ipAddress"`
	DateTime              string        `json:"dateTime"`
	AccessControllerEvent *accessFields `json:"AccessControllerEvent"`
	accessFields
}

// Classifier 事件分类器
type Classifier struct {
	logger *zap.Logger
}

// NewClassifier 创建事件分类器
func NewClassifier(logger *zap.Logger) *Classifier {
	return &Classifier{logger: logger}
}

// Classify parses one extracted JSON event. sourceIP is the connection's
// remote address, used when the payload carries no ipAddress field;
// receivedAt stands in for a missing or unparseable dateTime.
func (c *Classifier) Classify(raw json.RawMessage, sourceIP string, receivedAt time.Time) models.ParsedEvent {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("Event JSON does not match any known shape", zap.Error(err))
		return models.ParsedEvent{Kind: models.EventUnknown, DeviceIP: sourceIP}
	}

	deviceIP := env.IPAddress
	if deviceIP == "" {
		deviceIP = sourceIP
	}

	if env.EventType == "heartBeat" {
		return models.ParsedEvent{Kind: models.EventHeartbeat, DeviceIP: deviceIP}
	}

	fields := env.AccessControllerEvent
	if fields == nil {
		if env.MajorEventType == nil || env.SubEventType == nil {
			c.logger.Debug("Unknown event shape",
				zap.String("event_type", env.EventType),
				zap.String("device_ip", deviceIP),
			)
			return models.ParsedEvent{Kind: models.EventUnknown, DeviceIP: deviceIP}
		}
		fields = &env.accessFields
	}

	access := &models.AccessEvent{
		DeviceIP:   deviceIP,
		DateTime:   env.DateTime,
		EmployeeNo: fields.EmployeeNoString,
		Name:       fields.Name,
		VerifyMode: fields.CurrentVerifyMode,
	}
	if fields.MajorEventType != nil {
		access.MajorType = *fields.MajorEventType
	}
	if fields.SubEventType != nil {
		access.MinorType = *fields.SubEventType
	}

	if access.MajorType != MajorAccessControl ||
		(access.MinorType != MinorAccessGranted && access.MinorType != MinorAccessDenied) {
		return models.ParsedEvent{Kind: models.EventFiltered, DeviceIP: deviceIP, Access: access}
	}

	kind := models.EventAccessGranted
	if access.MinorType == MinorAccessDenied {
		kind = models.EventAccessDenied
	}

	return models.ParsedEvent{
		Kind:     kind,
		DeviceIP: deviceIP,
		Access:   access,
		LogEntry: buildLogEntry(access, receivedAt),
	}
}

// buildLogEntry formats the persisted line:
//
//	granted: F575-{ip}-{yyyymmddThhmmss}-{employeeNo}
//	denied:  F576-{ip}-{yyyymmddThhmmss}
func buildLogEntry(access *models.AccessEvent, receivedAt time.Time) string {
	ts := normalizeTimestamp(access.DateTime, receivedAt)

	ip := access.DeviceIP
	if ip == "" {
		ip = "UNKNOWN_IP"
	}

	if access.MinorType == MinorAccessGranted {
		return "F575-" + ip + "-" + ts + "-" + access.EmployeeNo
	}
	return "F576-" + ip + "-" + ts
}

// normalizeTimestamp reduces an ISO-8601 dateTime to yyyymmddThhmmss: strip
// date/time punctuation and any trailing timezone offset or Z. Without a T
// separator the event's arrival time is used instead.
func normalizeTimestamp(dateTime string, receivedAt time.Time) string {
	datePart, timePart, found := strings.Cut(dateTime, "T")
	if !found {
		return receivedAt.Format(logTimeLayout)
	}

	datePart = strings.ReplaceAll(datePart, "-", "")
	timePart, _, _ = strings.Cut(timePart, "-")
	timePart, _, _ = strings.Cut(timePart, "+")
	timePart = strings.TrimSuffix(timePart, "Z")
	timePart = strings.ReplaceAll(timePart, ":", "")

	return datePart + "T" + timePart
}
