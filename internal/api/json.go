package api

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// flexUint 接受 JSON 数字或数字字符串两种写法的 ID。
type flexUint uint

func (f *flexUint) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", s)
	}
	*f = flexUint(n)
	return nil
}

func (f *flexUint) Uint() *uint {
	if f == nil || *f == 0 {
		return nil
	}
	v := uint(*f)
	return &v
}

// optionalUint 区分三种状态：字段缺省、显式 null、具体值。
type optionalUint struct {
	Set   bool
	Value *uint
}

func (o *optionalUint) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var f flexUint
	if err := f.UnmarshalJSON(data); err != nil {
		return err
	}
	o.Value = f.Uint()
	return nil
}

// optStr 把空字符串折叠成缺省，COALESCE 语义下两者等价。
func optStr(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
