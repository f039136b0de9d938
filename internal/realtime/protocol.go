package realtime

import (
	"encoding/json"

	"github.com/d60-Lab/market-chat/internal/model"
)

// 事件类型
const (
	TypeJoin    = "join"
	TypeLeave   = "leave"
	TypeSend    = "send"
	TypeMessage = "message"
	TypeJoined  = "joined"
	TypeLeft    = "left"
	TypeError   = "error"
)

// Inbound 客户端上行帧。join/leave 可以直接给 room，也可以给 receiver+product 由服务端计算房间号
type Inbound struct {
	Type     string `json:"type"`
	Room     string `json:"room,omitempty"`
	Receiver string `json:"receiver,omitempty"`
	Product  string `json:"product,omitempty"`
	Body     string `json:"body,omitempty"`
	Ref      string `json:"ref,omitempty"`
}

// Outbound 服务端下行帧；Ref 原样回传客户端的请求标识
type Outbound struct {
	Type    string         `json:"type"`
	Room    string         `json:"room,omitempty"`
	Message *model.Message `json:"message,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Ref     string         `json:"ref,omitempty"`
}

func encode(o Outbound) []byte {
	b, err := json.Marshal(o)
	if err != nil {
		// 只含字符串和时间字段，不会失败
		panic(err)
	}
	return b
}

// MessageFrame 房间推送帧
func MessageFrame(roomID string, m *model.Message) []byte {
	return encode(Outbound{Type: TypeMessage, Room: roomID, Message: m})
}

func errorFrame(ref, reason string) []byte {
	return encode(Outbound{Type: TypeError, Reason: reason, Ref: ref})
}
