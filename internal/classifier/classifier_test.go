package classifier

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"hikbridge/internal/models"
)

func newTestClassifier() *Classifier {
	return NewClassifier(zap.NewNop())
}

// testReceivedAt is the pinned arrival time used by the classify helper.
var testReceivedAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func classify(t *testing.T, c *Classifier, payload string) models.ParsedEvent {
	t.Helper()
	return c.Classify(json.RawMessage(payload), "192.168.0.50", testReceivedAt)
}

func TestClassify_Heartbeat(t *testing.T) {
	c := newTestClassifier()
	ev := classify(t, c, `{"eventType":"heartBeat","ipAddress":"1.2.3.4"}`)

	assert.Equal(t, models.EventHeartbeat, ev.Kind)
	assert.Equal(t, "1.2.3.4", ev.DeviceIP)
	assert.Empty(t, ev.LogEntry)
}

func TestClassify_AccessGranted_NestedShape(t *testing.T) {
	c := newTestClassifier()
	ev := classify(t, c, `{
		"eventType": "AccessControllerEvent",
		"ipAddress": "1.2.3.4",
		"dateTime": "2024-05-01T10:00:00-05:00",
		"AccessControllerEvent": {
			"majorEventType": 5,
			"subEventType": 75,
			"employeeNoString": "42",
			"name": "Jane Doe",
			"currentVerifyMode": "cardOrFace"
		}
	}`)

	assert.Equal(t, models.EventAccessGranted, ev.Kind)
	assert.Equal(t, "F575-1.2.3.4-20240501T100000-42", ev.LogEntry)
	assert.Equal(t, "Jane Doe", ev.Access.Name)
	assert.Equal(t, "cardOrFace", ev.Access.VerifyMode)
}

func TestClassify_AccessDenied_ZuluSuffix(t *testing.T) {
	c := newTestClassifier()
	ev := classify(t, c, `{
		"ipAddress": "1.2.3.4",
		"dateTime": "2024-05-01T10:00:00Z",
		"AccessControllerEvent": {"majorEventType": 5, "subEventType": 76}
	}`)

	assert.Equal(t, models.EventAccessDenied, ev.Kind)
	assert.Equal(t, "F576-1.2.3.4-20240501T100000", ev.LogEntry)
}

func TestClassify_FlatShape(t *testing.T) {
	c := newTestClassifier()
	ev := classify(t, c, `{
		"ipAddress": "1.2.3.4",
		"dateTime": "2024-05-01T08:30:15+02:00",
		"majorEventType": 5,
		"subEventType": 75,
		"employeeNoString": "1001"
	}`)

	assert.Equal(t, models.EventAccessGranted, ev.Kind)
	assert.Equal(t, "F575-1.2.3.4-20240501T083015-1001", ev.LogEntry)
}

func TestClassify_Filtered(t *testing.T) {
	c := newTestClassifier()
	ev := classify(t, c, `{
		"ipAddress": "1.2.3.4",
		"AccessControllerEvent": {"majorEventType": 1, "subEventType": 1}
	}`)

	assert.Equal(t, models.EventFiltered, ev.Kind)
	assert.Empty(t, ev.LogEntry)
	assert.Equal(t, 1, ev.Access.MajorType)
}

func TestClassify_UnknownShape(t *testing.T) {
	c := newTestClassifier()
	ev := classify(t, c, `{"something":"else"}`)

	assert.Equal(t, models.EventUnknown, ev.Kind)
	assert.Equal(t, "192.168.0.50", ev.DeviceIP)
}

func TestClassify_SourceAddressFallback(t *testing.T) {
	c := newTestClassifier()
	ev := classify(t, c, `{
		"dateTime": "2024-05-01T10:00:00",
		"AccessControllerEvent": {"majorEventType": 5, "subEventType": 76}
	}`)

	assert.Equal(t, models.EventAccessDenied, ev.Kind)
	assert.Equal(t, "F576-192.168.0.50-20240501T100000", ev.LogEntry)
}

func TestClassify_MissingDateTimeUsesArrivalTime(t *testing.T) {
	c := newTestClassifier()
	ev := classify(t, c, `{
		"ipAddress": "1.2.3.4",
		"AccessControllerEvent": {"majorEventType": 5, "subEventType": 75, "employeeNoString": "7"}
	}`)

	// testReceivedAt, not the wall clock, must land in the entry.
	assert.Equal(t, "F575-1.2.3.4-20240501T100000-7", ev.LogEntry)
}

func TestNormalizeTimestamp(t *testing.T) {
	receivedAt := time.Date(2023, 12, 31, 23, 59, 58, 0, time.UTC)

	cases := []struct {
		in   string
		want string
	}{
		{"2024-05-01T10:00:00-05:00", "20240501T100000"},
		{"2024-05-01T10:00:00+08:00", "20240501T100000"},
		{"2024-05-01T10:00:00Z", "20240501T100000"},
		{"2024-05-01T10:00:00", "20240501T100000"},
		{"no separator", "20231231T235958"},
		{"", "20231231T235958"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizeTimestamp(tc.in, receivedAt), "input %q", tc.in)
	}
}
