package models

import "time"

// Operation 队列命令操作类型
type Operation string

const (
	OpAdd    Operation = "F0ADD"
	OpUpdate Operation = "F0UPD"
	OpDelete Operation = "F0DEL"
)

// QueueCommand 同步队列中的一条待处理命令
// 由应用层写入，worker 消费后删除，绝不原地修改
type QueueCommand struct {
	ID        int64
	Payload   string
	CreatedAt time.Time
}

// Command 解析后的同步命令
type Command struct {
	Operation Operation
	DeviceIP  string
	PersonID  string
}
