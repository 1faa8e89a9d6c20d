package messages

import (
	"encoding/json"
	"fmt"
)

// Request and response bodies are JSON documents carried in protocol.Command.Body.

type ProducerData struct {
	GroupName string `json:"groupName"`
}

type SubscriptionData struct {
	Topic      string   `json:"topic"`
	SubString  string   `json:"subString"`
	Tags       []string `json:"tagsSet,omitempty"`
	SubVersion int64    `json:"subVersion"`
}

type ConsumerData struct {
	GroupName        string             `json:"groupName"`
	ConsumeType      string             `json:"consumeType"`
	MessageModel     string             `json:"messageModel"`
	ConsumeFromWhere string             `json:"consumeFromWhere"`
	Subscriptions    []SubscriptionData `json:"subscriptionDataSet"`
}

// HeartbeatData is sent periodically by every client for all groups it belongs to.
type HeartbeatData struct {
	ClientID        string         `json:"clientID"`
	ProducerDataSet []ProducerData `json:"producerDataSet"`
	ConsumerDataSet []ConsumerData `json:"consumerDataSet"`
}

func (h HeartbeatData) String() string {
	return fmt.Sprintf("HeartbeatData {client=%s, producers=%d, consumers=%d}", h.ClientID, len(h.ProducerDataSet), len(h.ConsumerDataSet))
}

type ConsumerListBody struct {
	ConsumerIDList []string `json:"consumerIdList"`
}

// EnodeTable maps enode names to their addresses, as served by the nnode.
type EnodeTable struct {
	Enodes map[string]string `json:"enodes"`
}

type SnodeRegistration struct {
	SnodeName string `json:"snodeName"`
	SnodeAddr string `json:"snodeAddr"`
}

// NotifyConsumerIdsChanged is pushed to the members of a group when membership changes.
type NotifyConsumerIdsChanged struct {
	ConsumerGroup  string   `json:"consumerGroup"`
	ConsumerIDList []string `json:"consumerIdList"`
}

func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func Decode(data []byte, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("empty body for %T", v)
	}
	return json.Unmarshal(data, v)
}
