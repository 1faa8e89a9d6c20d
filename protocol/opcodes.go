// Package protocol defines the request opcodes the snode serves, the response codes it answers
// with, and the command envelope carried on the wire.
package protocol

import "strconv"

// Opcode identifies a request kind.
type Opcode int32

// Request opcodes dispatched by the snode.
const (
	QueryConsumerOffset     Opcode = 14
	UpdateConsumerOffset    Opcode = 15
	SearchOffsetByTimestamp Opcode = 29
	GetMaxOffset            Opcode = 30
	GetMinOffset            Opcode = 31
	HeartBeat               Opcode = 34
	UnregisterClient        Opcode = 35
	ConsumerSendMsgBack     Opcode = 36
	GetConsumerListByGroup  Opcode = 38
	SendMessageV2           Opcode = 310
	SnodePullMessage        Opcode = 351
)

// Opcodes the snode sends upstream to naming nodes.
const (
	RegisterSnode            Opcode = 900
	GetEnodeTable            Opcode = 901
	NotifyConsumerIdsChanged Opcode = 40
)

var opcodeNames = map[Opcode]string{
	QueryConsumerOffset:      "QUERY_CONSUMER_OFFSET",
	UpdateConsumerOffset:     "UPDATE_CONSUMER_OFFSET",
	SearchOffsetByTimestamp:  "SEARCH_OFFSET_BY_TIMESTAMP",
	GetMaxOffset:             "GET_MAX_OFFSET",
	GetMinOffset:             "GET_MIN_OFFSET",
	HeartBeat:                "HEART_BEAT",
	UnregisterClient:         "UNREGISTER_CLIENT",
	ConsumerSendMsgBack:      "CONSUMER_SEND_MSG_BACK",
	GetConsumerListByGroup:   "GET_CONSUMER_LIST_BY_GROUP",
	SendMessageV2:            "SEND_MESSAGE_V2",
	SnodePullMessage:         "SNODE_PULL_MESSAGE",
	RegisterSnode:            "REGISTER_SNODE",
	GetEnodeTable:            "GET_ENODE_TABLE",
	NotifyConsumerIdsChanged: "NOTIFY_CONSUMER_IDS_CHANGED",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "OPCODE_" + strconv.Itoa(int(o))
}

// ResponseCode is the status of a response command.
type ResponseCode int32

const (
	Success                 ResponseCode = 0
	SystemError             ResponseCode = 1
	SystemBusy              ResponseCode = 2
	RequestCodeNotSupported ResponseCode = 3
	QueryNotFound           ResponseCode = 22
	TopicNotExist           ResponseCode = 17
)

func (c ResponseCode) String() string {
	switch c {
	case Success:
		return "SUCCESS"
	case SystemError:
		return "SYSTEM_ERROR"
	case SystemBusy:
		return "SYSTEM_BUSY"
	case RequestCodeNotSupported:
		return "REQUEST_CODE_NOT_SUPPORTED"
	case QueryNotFound:
		return "QUERY_NOT_FOUND"
	case TopicNotExist:
		return "TOPIC_NOT_EXIST"
	default:
		return "RESPONSE_" + strconv.Itoa(int(c))
	}
}
