package snode

import (
	"github.com/xiaogangfan/rocketmq/config"
	"github.com/xiaogangfan/rocketmq/protocol"
)

type chainKind int

const (
	noChain chainKind = iota
	sendChain
	consumeChain
)

// binding of one opcode. The class names both the processor and the pool.
type opcodeBinding struct {
	op    protocol.Opcode
	class string
	chain chainKind
}

var opcodeTable = []opcodeBinding{
	{protocol.SendMessageV2, config.PoolSend, sendChain},
	{protocol.ConsumerSendMsgBack, config.PoolSend, sendChain},
	{protocol.HeartBeat, config.PoolHeartbeat, noChain},
	{protocol.UnregisterClient, config.PoolHeartbeat, noChain},
	{protocol.SnodePullMessage, config.PoolPull, consumeChain},
	{protocol.GetConsumerListByGroup, config.PoolConsumerManage, consumeChain},
	{protocol.UpdateConsumerOffset, config.PoolConsumerManage, consumeChain},
	{protocol.QueryConsumerOffset, config.PoolConsumerManage, consumeChain},
	{protocol.GetMinOffset, config.PoolConsumerManage, consumeChain},
	{protocol.GetMaxOffset, config.PoolConsumerManage, consumeChain},
	{protocol.SearchOffsetByTimestamp, config.PoolConsumerManage, consumeChain},
}
