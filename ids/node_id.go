package ids

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/xiaogangfan/rocketmq/log"
)

var id = pflag.String("id", "1.1", "ID of this snode in format of Zone.Node. Default 1.1")

// ID identifies a node in format of Zone.Node
type ID struct {
	ZoneId uint8
	NodeId uint8
}

func NewID(zone, node uint8) *ID {
	return &ID{ZoneId: zone, NodeId: node}
}

// GetIDFromFlag gets the current id specified in flag variables
func GetIDFromFlag() *ID {
	if !pflag.Parsed() {
		log.Warningln("Using GetIDFromFlag before parsing flags")
	}
	nodeId, err := ParseID(*id)
	if err != nil {
		log.Errorf("Bad node id flag: %v", err)
		return nil
	}
	return nodeId
}

// GetIDFromString is ParseID that logs instead of returning the error
func GetIDFromString(s string) *ID {
	nodeId, err := ParseID(s)
	if err != nil {
		log.Warningf("%v", err)
		return nil
	}
	return nodeId
}

func ParseID(s string) (*ID, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return nil, fmt.Errorf("id %q is not in Zone.Node format", s)
	}
	zone, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("bad zone in id %q: %w", s, err)
	}
	node, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("bad node in id %q: %w", s, err)
	}
	return &ID{ZoneId: uint8(zone), NodeId: uint8(node)}, nil
}

// Zone returns Zone ID component
func (i *ID) Zone() uint8 {
	return i.ZoneId
}

// Node returns Node ID component
func (i *ID) Node() uint8 {
	return i.NodeId
}

func (i ID) String() string {
	return strconv.Itoa(int(i.ZoneId)) + "." + strconv.Itoa(int(i.NodeId))
}

// MarshalText lets IDs be used as JSON and YAML map keys
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*i = *parsed
	return nil
}

func (i ID) Int() int {
	return int(i.ZoneId)<<8 | int(i.NodeId)
}
