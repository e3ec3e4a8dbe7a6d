package worker

import (
	"fmt"
	"strings"

	"hikbridge/internal/models"
)

// ParseCommand parses the fixed queue command grammar
// "{OPERATION}-{DEVICE_IP}-{PERSON_ID}", e.g. "F0ADD-192.168.0.222-100005".
// IPv4 addresses use dots, so "-" is unambiguous as a delimiter.
func ParseCommand(payload string) (models.Command, error) {
	parts := strings.SplitN(strings.TrimSpace(payload), "-", 3)
	if len(parts) < 3 {
		return models.Command{}, fmt.Errorf("invalid command format: %q", payload)
	}

	op := models.Operation(parts[0])
	switch op {
	case models.OpAdd, models.OpUpdate, models.OpDelete:
	default:
		return models.Command{}, fmt.Errorf("unknown operation: %q", parts[0])
	}

	return models.Command{
		Operation: op,
		DeviceIP:  parts[1],
		PersonID:  parts[2],
	}, nil
}
