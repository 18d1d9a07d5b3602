// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package consensus

import (
	"fmt"

	"github.com/umbranet/umbrad/util"
)

// NotificationType represents the type of a notification message.
type NotificationType int

// NotificationCallback is used for a caller to provide a callback for
// notifications about various chain events.
type NotificationCallback func(*Notification)

// Constants for the type of a notification message.
const (
	// NTBlockAccepted indicates the associated block was accepted into
	// the block index. Note that this does not necessarily mean it
	// extends the selected chain; consult the notification data.
	NTBlockAccepted NotificationType = iota

	// NTChainReorganized indicates the selected chain switched to a
	// heavier branch. The notification data carries the blocks that were
	// detached from the old branch and attached to the new one.
	NTChainReorganized
)

// notificationTypeStrings is a map of notification types back to their
// constant names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	NTBlockAccepted:    "NTBlockAccepted",
	NTChainReorganized: "NTChainReorganized",
}

// String returns the NotificationType in human-readable form.
func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Notification Type (%d)", int(n))
}

// BlockAcceptedNotificationData is the data of a NTBlockAccepted
// notification.
type BlockAcceptedNotificationData struct {
	// Block is the block that was accepted.
	Block *util.Block

	// IsMainChain is true when the block extends or reorganizes the
	// selected chain, and false when it lands on a side chain.
	IsMainChain bool
}

// ChainReorganizedNotificationData is the data of a NTChainReorganized
// notification. Detached blocks are ordered from the old tip down towards
// the fork point; attached blocks are ordered from the fork point up to the
// new tip.
type ChainReorganizedNotificationData struct {
	DetachedBlocks []*util.Block
	AttachedBlocks []*util.Block
}

// Notification defines a notification that is sent to the caller via the
// callback function provided during the call to Subscribe and consists of
// a notification type as well as associated data that depends on the type
// as follows:
//
//	- NTBlockAccepted:     *BlockAcceptedNotificationData
//	- NTChainReorganized:  *ChainReorganizedNotificationData
type Notification struct {
	Type NotificationType
	Data interface{}
}

// Subscribe to block chain notifications. Registers a callback to be
// executed when various events take place. See the documentation on
// Notification and NotificationType for details on the types and contents
// of notifications.
func (chain *Chain) Subscribe(callback NotificationCallback) {
	chain.notificationsLock.Lock()
	chain.notifications = append(chain.notifications, callback)
	chain.notificationsLock.Unlock()
}

// sendNotification sends a notification with the passed type and data if
// the caller requested notifications by providing a callback function in
// the call to Subscribe.
//
// This function must be called without the chain state lock held: callbacks
// are free to call back into the chain's read API.
func (chain *Chain) sendNotification(typ NotificationType, data interface{}) {
	// Generate and send the notification.
	n := Notification{Type: typ, Data: data}
	chain.notificationsLock.RLock()
	for _, callback := range chain.notifications {
		callback(&n)
	}
	chain.notificationsLock.RUnlock()
}
