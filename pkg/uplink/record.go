package uplink

import (
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/ttyio/pkg/logger"
)

// LogRecord is the wire form of a log line, see record.proto.
type LogRecord struct {
	Level    int32  `protobuf:"varint,1,opt,name=level,proto3" json:"level,omitempty"`
	Time     string `protobuf:"bytes,2,opt,name=time,proto3" json:"time,omitempty"`
	Message  string `protobuf:"bytes,3,opt,name=message,proto3" json:"message,omitempty"`
	DeviceId string `protobuf:"bytes,4,opt,name=device_id,json=deviceId,proto3" json:"device_id,omitempty"`
	BootId   string `protobuf:"bytes,5,opt,name=boot_id,json=bootId,proto3" json:"boot_id,omitempty"`
	Seq      uint64 `protobuf:"varint,6,opt,name=seq,proto3" json:"seq,omitempty"`

	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

// Reset implements proto.Message.
func (m *LogRecord) Reset() { *m = LogRecord{} }

// String implements proto.Message.
func (m *LogRecord) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements proto.Message.
func (*LogRecord) ProtoMessage() {}

// LogLevel converts Level back.
func (m *LogRecord) LogLevel() logger.Level {
	return logger.Level(m.Level)
}

// EncodeRecord serializes a record.
func EncodeRecord(rec *LogRecord) ([]byte, error) {
	return proto.Marshal(rec)
}

// DecodeRecord parses a record.
func DecodeRecord(data []byte) (*LogRecord, error) {
	rec := &LogRecord{}
	if err := proto.Unmarshal(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
