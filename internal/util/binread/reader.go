// Package binread 提供带边界检查的大端字节读取器。
// 行情二进制协议所有多字节字段均为大端编码，
// 读取前先校验偏移范围，越界返回错误而不是 panic。
package binread

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer 读取范围超出缓冲区
var ErrShortBuffer = errors.New("binread: 读取越界")

// Reader 定长字节切片读取器
// 所有读取方法按绝对偏移取值，不维护游标，
// 便于按协议文档的字节区间直接取字段。
type Reader struct {
	// buf 底层字节切片（只读）
	buf []byte
}

// New 创建字节读取器
// 参数 buf: 待读取的字节切片，Reader 不会修改其内容
func New(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len 获取底层缓冲区长度
func (r *Reader) Len() int {
	return len(r.buf)
}

// Bytes 获取指定区间的原始字节
// 参数 off: 起始偏移
// 参数 n: 字节数
// 返回: 底层切片的子切片（只读）和可能的越界错误
func (r *Reader) Bytes(off, n int) ([]byte, error) {
	if err := r.check(off, n); err != nil {
		return nil, err
	}
	return r.buf[off : off+n], nil
}

// Uint16At 读取偏移 off 处的大端 uint16
func (r *Reader) Uint16At(off int) (uint16, error) {
	if err := r.check(off, 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(r.buf[off:]), nil
}

// Int16At 读取偏移 off 处的大端 int16
// 用于深度档位的订单数字段
func (r *Reader) Int16At(off int) (int16, error) {
	v, err := r.Uint16At(off)
	return int16(v), err
}

// Uint32At 读取偏移 off 处的大端 uint32
func (r *Reader) Uint32At(off int) (uint32, error) {
	if err := r.check(off, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(r.buf[off:]), nil
}

// Int32At 读取偏移 off 处的大端 int32
// 价格字段在线上为有符号整数（净变动可为负）
func (r *Reader) Int32At(off int) (int32, error) {
	v, err := r.Uint32At(off)
	return int32(v), err
}

// check 校验 [off, off+n) 是否落在缓冲区内
func (r *Reader) check(off, n int) error {
	if off < 0 || n < 0 || off+n > len(r.buf) {
		return fmt.Errorf("%w: off=%d n=%d len=%d", ErrShortBuffer, off, n, len(r.buf))
	}
	return nil
}
