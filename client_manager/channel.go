// Package client_manager tracks the producer and consumer channels that heartbeat into the snode.
package client_manager

import (
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// ClientChannelInfo is one client connection belonging to a group
type ClientChannelInfo struct {
	ClientID   string
	RemoteAddr string
	LastUpdate time.Time
}

func (c ClientChannelInfo) String() string {
	return fmt.Sprintf("ClientChannelInfo {clientId=%s, addr=%s, lastUpdate=%v}", c.ClientID, c.RemoteAddr, c.LastUpdate)
}

type channelKey struct {
	Group      string
	RemoteAddr string
}

type channelTable = ttlcache.Cache[channelKey, ClientChannelInfo]

func newChannelTable(expiry time.Duration) *channelTable {
	return ttlcache.New[channelKey, ClientChannelInfo](
		ttlcache.WithTTL[channelKey, ClientChannelInfo](expiry),
		ttlcache.WithDisableTouchOnHit[channelKey, ClientChannelInfo](),
	)
}

func groupChannels(tbl *channelTable, group string) []ClientChannelInfo {
	chans := make([]ClientChannelInfo, 0)
	for k, item := range tbl.Items() {
		if k.Group == group {
			chans = append(chans, item.Value())
		}
	}
	return chans
}

// removeAddr deletes every entry of remoteAddr and returns the groups it was in
func removeAddr(tbl *channelTable, remoteAddr string) []string {
	groups := make([]string, 0)
	for _, k := range tbl.Keys() {
		if k.RemoteAddr == remoteAddr {
			tbl.Delete(k)
			groups = append(groups, k.Group)
		}
	}
	return groups
}
