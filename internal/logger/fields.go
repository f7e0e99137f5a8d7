package logger

import (
	"time"

	"go.uber.org/zap"
)

func RequestID(v string) zap.Field       { return zap.String("request_id", v) }
func Method(v string) zap.Field          { return zap.String("method", v) }
func Path(v string) zap.Field            { return zap.String("path", v) }
func Status(v int) zap.Field             { return zap.Int("status", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func Bytes(v int) zap.Field              { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field        { return zap.String("client_ip", v) }
func UserID(v string) zap.Field          { return zap.String("user_id", v) }
func ClientGroupID(v string) zap.Field   { return zap.String("client_group_id", v) }
func Mutation(name string, id int64) zap.Field {
	return zap.Dict("mutation", zap.String("name", name), zap.Int64("id", id))
}
func Op(v string) zap.Field   { return zap.String("op", v) }
func Step(v string) zap.Field { return zap.String("step", v) }
func Err(err error) zap.Field { return zap.Error(err) }
