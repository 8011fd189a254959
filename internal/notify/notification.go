// Package notify groups accepted slots into human-readable notifications
// and fans them out to the configured senders.
package notify

import (
	"context"
	"strconv"
	"strings"
)

// Notification is one rendered message for a (venue, date, time, service)
// group of slots.
type Notification struct {
	Title      string
	Body       string
	URL        string
	URLTitle   string
	PartySizes []int
}

// Sender delivers a notification to one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// JoinSizes renders party sizes as "2", "2 or 4", "2, 4 or 6".
func JoinSizes(sizes []int) string {
	parts := make([]string, len(sizes))
	for i, s := range sizes {
		parts[i] = strconv.Itoa(s)
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " or " + parts[len(parts)-1]
}
