package protocol

import (
	"encoding/gob"
	"fmt"
	"strconv"
)

func init() {
	gob.Register(Command{})
}

// Command is the envelope for both requests and responses. A response carries the Opaque of the
// request it answers.
type Command struct {
	Code     int32
	Opaque   uint64
	Response bool
	Fields   map[string]string
	Body     []byte
	Remark   string
}

func NewRequest(op Opcode, fields map[string]string, body []byte) *Command {
	if fields == nil {
		fields = make(map[string]string)
	}
	return &Command{Code: int32(op), Fields: fields, Body: body}
}

// NewResponse builds a response with the given status. Use ResponseTo to attach it to a request.
func NewResponse(code ResponseCode, remark string) *Command {
	return &Command{Code: int32(code), Response: true, Fields: make(map[string]string), Remark: remark}
}

// ResponseTo marks c as the response of req.
func (c *Command) ResponseTo(req *Command) *Command {
	c.Opaque = req.Opaque
	c.Response = true
	return c
}

// Clone copies c so it can be sent upstream under a new Opaque. Body is shared.
func (c *Command) Clone() *Command {
	cp := *c
	cp.Fields = make(map[string]string, len(c.Fields))
	for k, v := range c.Fields {
		cp.Fields[k] = v
	}
	return &cp
}

func (c *Command) Opcode() Opcode {
	return Opcode(c.Code)
}

func (c *Command) ResponseCode() ResponseCode {
	return ResponseCode(c.Code)
}

func (c *Command) Field(name string) string {
	if c.Fields == nil {
		return ""
	}
	return c.Fields[name]
}

func (c *Command) SetField(name, value string) *Command {
	if c.Fields == nil {
		c.Fields = make(map[string]string)
	}
	c.Fields[name] = value
	return c
}

// IntField parses a numeric field. Missing fields are an error.
func (c *Command) IntField(name string) (int64, error) {
	v, ok := c.Fields[name]
	if !ok {
		return 0, fmt.Errorf("missing field %s", name)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", name, err)
	}
	return n, nil
}

func (c Command) String() string {
	if c.Response {
		return fmt.Sprintf("Command {response code=%v, opaque=%d, remark=%q}", ResponseCode(c.Code), c.Opaque, c.Remark)
	}
	return fmt.Sprintf("Command {request code=%v, opaque=%d, fields=%v, body=%dB}", Opcode(c.Code), c.Opaque, c.Fields, len(c.Body))
}

// Request field names
const (
	FieldTopic         = "topic"
	FieldConsumerGroup = "consumerGroup"
	FieldProducerGroup = "producerGroup"
	FieldClientID      = "clientID"
	FieldQueueID       = "queueId"
	FieldOffset        = "offset"
	FieldEnodeName     = "enodeName"
	FieldTimestamp     = "timestamp"
	FieldSnodeName     = "snodeName"
	FieldSnodeAddr     = "snodeAddr"
)
