package bgp

import "fmt"

// ParseNotification parses a BGP NOTIFICATION body (the bytes after the
// 19-byte BGP header): error code, error subcode, then variable data.
func ParseNotification(data []byte) (*Notification, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("bgp: notification body too short (%d bytes)", len(data))
	}

	return &Notification{
		Code:    data[0],
		Subcode: data[1],
		Data:    data[2:],
	}, nil
}

// CodeName returns the registered name for the notification's error code,
// or an UNKNOWN(n) placeholder.
func (n *Notification) CodeName() string {
	if name, ok := NotificationCodeNames[n.Code]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", n.Code)
}
