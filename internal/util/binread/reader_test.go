// Package binread 大端读取器测试
package binread

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestReader_SpecificValues 测试特定字节序列的读取
func TestReader_SpecificValues(t *testing.T) {
	// 0x0102 = 258, 0x01020304 = 16909060
	buf := []byte{0x01, 0x02, 0x03, 0x04, 0xFF, 0xFF, 0xFF, 0xFF}
	r := New(buf)

	if got, err := r.Uint16At(0); err != nil || got != 258 {
		t.Errorf("Uint16At(0) = %d, %v; want 258, nil", got, err)
	}
	if got, err := r.Uint32At(0); err != nil || got != 16909060 {
		t.Errorf("Uint32At(0) = %d, %v; want 16909060, nil", got, err)
	}
	// 0xFFFFFFFF 解释为有符号应为 -1
	if got, err := r.Int32At(4); err != nil || got != -1 {
		t.Errorf("Int32At(4) = %d, %v; want -1, nil", got, err)
	}
	// 0xFFFF 解释为有符号应为 -1
	if got, err := r.Int16At(4); err != nil || got != -1 {
		t.Errorf("Int16At(4) = %d, %v; want -1, nil", got, err)
	}
}

// TestReader_OutOfRange 测试越界读取返回错误
func TestReader_OutOfRange(t *testing.T) {
	r := New([]byte{0x01, 0x02, 0x03})

	tests := []struct {
		name string
		read func() error
	}{
		{"uint16 越界", func() error { _, err := r.Uint16At(2); return err }},
		{"uint32 越界", func() error { _, err := r.Uint32At(0); return err }},
		{"负偏移", func() error { _, err := r.Uint16At(-1); return err }},
		{"bytes 越界", func() error { _, err := r.Bytes(1, 3); return err }},
		{"bytes 负长度", func() error { _, err := r.Bytes(0, -1); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.read()
			if err == nil {
				t.Fatal("期望返回错误，实际为 nil")
			}
			if !errors.Is(err, ErrShortBuffer) {
				t.Errorf("错误类型 = %v, want ErrShortBuffer", err)
			}
		})
	}
}

// TestReader_RoundTrip 测试编码后读取的往返一致性
// 属性: 任意 int32 以大端写入后，Int32At 应读出原值
func TestReader_RoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("int32 大端往返一致", prop.ForAll(
		func(v int32, pad uint8) bool {
			// 在任意前缀偏移处写入
			off := int(pad % 8)
			buf := make([]byte, off+4)
			binary.BigEndian.PutUint32(buf[off:], uint32(v))

			got, err := New(buf).Int32At(off)
			return err == nil && got == v
		},
		gen.Int32(),
		gen.UInt8(),
	))

	properties.Property("uint16 大端往返一致", prop.ForAll(
		func(v uint16) bool {
			buf := make([]byte, 2)
			binary.BigEndian.PutUint16(buf, v)
			got, err := New(buf).Uint16At(0)
			return err == nil && got == v
		},
		gen.UInt16(),
	))

	properties.TestingRun(t)
}
