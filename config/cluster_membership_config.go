package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xiaogangfan/rocketmq/ids"
	"github.com/xiaogangfan/rocketmq/log"
)

// NodeInfo is what the report tool needs to pull measurement files off a node over ssh
type NodeInfo struct {
	NodeId   ids.ID
	SshAddr  string
	DataDir  string
	RSA_path string
	Usr_name string
}

type ClusterMembershipConfig struct {
	SshAddrsStr map[string]string `json:"ssh_address" yaml:"ssh_address"` // host:port for ssh per node id
	DataDirs    map[string]string `json:"data_dir" yaml:"data_dir"`       // remote directory holding the csv files
	RSA_path    map[string]string `json:"rsa_path" yaml:"rsa_path"`       // RSA key location
	Usr_name    map[string]string `json:"usr_name" yaml:"usr_name"`       // usr name for ssh

	/************************************************************************************************************
	 * Here are config parameters derived from the file
	 ***********************************************************************************************************/

	IDs   []ids.ID            `json:"-" yaml:"-"`
	Addrs map[ids.ID]NodeInfo `json:"-" yaml:"-"`

	sync.RWMutex `json:"-" yaml:"-"`
}

func MakeDefaultClusterMembershipConfig() *ClusterMembershipConfig {
	config := new(ClusterMembershipConfig)
	config.Addrs = make(map[ids.ID]NodeInfo)
	config.refreshIdsFromAddresses()
	return config
}

func (c *ClusterMembershipConfig) GetIds() []ids.ID {
	c.RLock()
	defer c.RUnlock()
	return c.IDs
}

func (c *ClusterMembershipConfig) GetNode(id ids.ID) (NodeInfo, bool) {
	c.RLock()
	defer c.RUnlock()
	ni, ok := c.Addrs[id]
	return ni, ok
}

func (c *ClusterMembershipConfig) refreshIdsFromAddresses() {
	c.IDs = make([]ids.ID, 0, len(c.Addrs))
	for id := range c.Addrs {
		c.IDs = append(c.IDs, id)
	}
	sort.Slice(c.IDs, func(i, j int) bool { return c.IDs[i].Int() < c.IDs[j].Int() })
}

func (c *ClusterMembershipConfig) AddNode(ni NodeInfo) error {
	c.Lock()
	defer c.Unlock()
	if _, exists := c.Addrs[ni.NodeId]; exists {
		return fmt.Errorf("node with id=%v already exists and cannot be added", ni.NodeId)
	}
	c.Addrs[ni.NodeId] = ni
	c.refreshIdsFromAddresses()
	return nil
}

func (c *ClusterMembershipConfig) Init() {
	c.Lock()
	defer c.Unlock()
	c.Addrs = make(map[ids.ID]NodeInfo, len(c.SshAddrsStr))
	for idStr, addr := range c.SshAddrsStr {
		id, err := ids.ParseID(idStr)
		if err != nil {
			log.Errorf("Skipping cluster member %s: %v", idStr, err)
			continue
		}
		c.Addrs[*id] = NodeInfo{
			NodeId:   *id,
			SshAddr:  addr,
			DataDir:  c.DataDirs[idStr],
			RSA_path: c.RSA_path[idStr],
			Usr_name: c.Usr_name[idStr],
		}
	}
	c.refreshIdsFromAddresses()
}
